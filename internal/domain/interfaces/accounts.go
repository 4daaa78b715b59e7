package interfaces

import domaintypes "pqchat/internal/domain/types"

// AccountStore persists the account profile of the local identity.
type AccountStore interface {
	SaveAccountProfile(profile domaintypes.AccountProfile) error
	LoadAccountProfile() (domaintypes.AccountProfile, bool, error)
}
