package core

import (
	"context"
	"fmt"
	"math/rand/v2"
)

// Directory authorities used by the engine.
const (
	RoleApplier = "applier"
	RoleNormal  = "normal"
	RoleSuper   = "super"
	RoleIllegal = "illegal"
	RoleAdmin   = "pc"
)

// User is a CRM account known to the directory.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Authority string `json:"authority"`
	// Superiors are the user's direct superiors, in directory order.
	Superiors []*User `json:"-"`
}

func (u *User) String() string {
	if u == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(id=%d,phone=%s)", u.Name, u.ID, u.Phone)
}

// Directory looks up users by authority tag.
type Directory interface {
	// FindUsersByAuthority returns every user tagged with role, in stable order.
	FindUsersByAuthority(ctx context.Context, role string) ([]*User, error)
	// FindUser returns the first user tagged with role.
	FindUser(ctx context.Context, role string) (*User, error)
}

// Rand is the random source used for participant selection.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// NewSeededRand returns a deterministic source for reproducible flows.
func NewSeededRand(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func pickOne(r Rand, users []*User) []*User {
	if len(users) == 0 {
		return nil
	}
	return []*User{users[r.IntN(len(users))]}
}
