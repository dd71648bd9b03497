package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/Dicklesworthstone/approveflow/internal/core"
	"github.com/Dicklesworthstone/approveflow/internal/db"
)

// Directory is an in-memory core.Directory.
type Directory struct {
	mu     sync.Mutex
	users  []*core.User
	nextID int64
	// Err, if set, is returned by every lookup.
	Err error
	// Calls counts lookups per role.
	Calls map[string]int
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{nextID: 1, Calls: map[string]int{}}
}

// Add registers a user tagged with role, assigning id and phone.
func (d *Directory) Add(role, name string, superiors ...*core.User) *core.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &core.User{
		ID:        d.nextID,
		Name:      name,
		Phone:     fmt.Sprintf("1380000%04d", d.nextID),
		Authority: role,
		Superiors: superiors,
	}
	d.nextID++
	d.users = append(d.users, u)
	return u
}

// FindUsersByAuthority implements core.Directory.
func (d *Directory) FindUsersByAuthority(_ context.Context, role string) ([]*core.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls[role]++
	if d.Err != nil {
		return nil, d.Err
	}
	var out []*core.User
	for _, u := range d.users {
		if u.Authority == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// FindUser implements core.Directory.
func (d *Directory) FindUser(ctx context.Context, role string) (*core.User, error) {
	users, err := d.FindUsersByAuthority(ctx, role)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user with authority %q", role)
	}
	return users[0], nil
}

// Org is a small organisation covering every authority.
//
//	Applicant -> Manager -> Director -> VP
type Org struct {
	Dir *Directory

	Applicant *core.User
	Manager   *core.User
	Director  *core.User
	VP        *core.User
	// Eligible are the "normal" users that explicit policies pick from.
	Eligible []*core.User
	Super    *core.User
	Illegal  *core.User
	Admin    *core.User
}

// NewOrg builds the standard fixture organisation.
func NewOrg() *Org {
	d := NewDirectory()
	o := &Org{Dir: d}
	o.VP = d.Add("manager", "vp")
	o.Director = d.Add("manager", "director", o.VP)
	o.Manager = d.Add("manager", "manager", o.Director)
	o.Applicant = d.Add(core.RoleApplier, "applicant", o.Manager)
	o.Eligible = []*core.User{
		d.Add(core.RoleNormal, "alice"),
		d.Add(core.RoleNormal, "bob"),
		d.Add(core.RoleNormal, "carol"),
	}
	o.Super = d.Add(core.RoleSuper, "root")
	o.Illegal = d.Add(core.RoleIllegal, "mallory")
	o.Admin = d.Add(core.RoleAdmin, "admin")
	return o
}

// Users returns every user in insertion order.
func (d *Directory) Users() []*core.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*core.User(nil), d.users...)
}

// Seeds converts the directory into database seeds, superiors by phone.
func (d *Directory) Seeds() []db.UserSeed {
	users := d.Users()
	seeds := make([]db.UserSeed, 0, len(users))
	for _, u := range users {
		s := db.UserSeed{ID: u.ID, Name: u.Name, Phone: u.Phone, Authority: u.Authority}
		for _, sup := range u.Superiors {
			s.Superiors = append(s.Superiors, sup.Phone)
		}
		seeds = append(seeds, s)
	}
	return seeds
}
