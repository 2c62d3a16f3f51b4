package statetransition

import (
	"fmt"

	"github.com/eigerco/attestd/internal/crypto"
)

type originKind uint8

const (
	originNone originKind = iota
	originSigned
	originRoot
)

// Origin is the authority a call is dispatched with.
type Origin struct {
	kind    originKind
	account crypto.AccountId
}

// Signed is the origin of a call authenticated by account.
func Signed(account crypto.AccountId) Origin {
	return Origin{kind: originSigned, account: account}
}

// Root is the administrative origin.
func Root() Origin {
	return Origin{kind: originRoot}
}

// None is the origin of self-authenticating unsigned messages.
func None() Origin {
	return Origin{kind: originNone}
}

// Account returns the signing account; ok is false for any other origin.
func (o Origin) Account() (crypto.AccountId, bool) {
	return o.account, o.kind == originSigned
}

func (o Origin) IsRoot() bool { return o.kind == originRoot }

func (o Origin) IsNone() bool { return o.kind == originNone }

func (o Origin) String() string {
	switch o.kind {
	case originSigned:
		return fmt.Sprintf("signed(%s)", o.account)
	case originRoot:
		return "root"
	default:
		return "none"
	}
}

// TransactionSource says where a candidate result entered the node.
type TransactionSource uint8

const (
	SourceLocal TransactionSource = iota
	SourceExternal
	SourceInBlock
)

func (s TransactionSource) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceExternal:
		return "external"
	case SourceInBlock:
		return "in_block"
	default:
		return "unknown"
	}
}

// ValidTransaction is the outcome of a successful pool-level check.
type ValidTransaction struct {
	Priority uint64
	// Provides is the tag of which at most one pooled transaction may exist.
	Provides  []byte
	Longevity uint64
	Propagate bool
}
