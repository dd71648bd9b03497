package core

import (
	"fmt"
	"net/url"
	"strconv"
)

// SettingStep configures one approval level before the business record
// is applied.
type SettingStep struct {
	Number int
	Policy Policy
	// EligibleUsers is empty unless the policy requires explicit participants.
	EligibleUsers []*User
}

func (s *SettingStep) key(field string) string {
	return fmt.Sprintf("_approve[multistep][%d][%s]", s.Number, field)
}

// Fragment renders this step's part of the settings payload.
func (s *SettingStep) Fragment() url.Values {
	v := url.Values{}
	v.Set(s.key("step"), strconv.Itoa(s.Number))
	v.Set(s.key("enable"), "1")
	v.Set(s.key("type"), s.Policy.Value())

	idsKey := s.key("user_ids") + "[]"
	ids := s.EligibleIDs()
	if len(ids) == 0 {
		v.Set(idsKey, "")
		return v
	}
	for _, id := range ids {
		v.Add(idsKey, strconv.FormatInt(id, 10))
	}
	return v
}

// EligibleIDs returns the eligible users' ids in directory order.
func (s *SettingStep) EligibleIDs() []int64 {
	ids := make([]int64, 0, len(s.EligibleUsers))
	for _, u := range s.EligibleUsers {
		ids = append(ids, u.ID)
	}
	return ids
}

// mergeFragments merges step fragments; later fragments win on duplicate keys.
func mergeFragments(prefix string, steps []*SettingStep) url.Values {
	out := url.Values{}
	for _, s := range steps {
		for k, vals := range s.Fragment() {
			out[prefix+k] = append([]string(nil), vals...)
		}
	}
	return out
}
