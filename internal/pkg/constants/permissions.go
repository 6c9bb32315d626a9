package constants

const (
	CreateListing     = "create_listing"
	ManageOwnListings = "manage_own_listings"
	ModerateListings  = "moderate_listings"
	InitiateTransfer  = "initiate_transfer"
	ResolveDisputes   = "resolve_disputes"
	OverrideTransfers = "override_transfers"
	DispatchPayouts   = "dispatch_payouts"
	ViewPayouts       = "view_payouts"
)

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	CreateListing:     {Seller, Admin},
	ManageOwnListings: {Seller, Admin},
	ModerateListings:  {Admin},
	InitiateTransfer:  {Seller, Admin},
	ResolveDisputes:   {Admin},
	OverrideTransfers: {Admin},
	DispatchPayouts:   {Admin},
	ViewPayouts:       {Seller, Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
