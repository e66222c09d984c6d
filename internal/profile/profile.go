package profile

import (
	"fmt"
	"strings"
)

// Profile is a named safe-storage envelope.
//
// Temperatures are in degrees Celsius, humidity in percent relative humidity.
type Profile struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	TMin     float64 `json:"t_min"`
	TMax     float64 `json:"t_max"`
	TOptimum float64 `json:"t_optimum"`
	UMin     float64 `json:"u_min"`
	UMax     float64 `json:"u_max"`
}

// TempWidth returns TMax - TMin.
func (p Profile) TempWidth() float64 {
	return p.TMax - p.TMin
}

// HumidityWidth returns UMax - UMin.
func (p Profile) HumidityWidth() float64 {
	return p.UMax - p.UMin
}

// Validate checks TMin < TOptimum < TMax and UMin < UMax.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidProfile)
	}
	if !(p.TMin < p.TOptimum && p.TOptimum < p.TMax) {
		return fmt.Errorf("%w: %s: need t_min < t_optimum < t_max, got %g/%g/%g",
			ErrInvalidProfile, p.ID, p.TMin, p.TOptimum, p.TMax)
	}
	if !(p.UMin < p.UMax) {
		return fmt.Errorf("%w: %s: need u_min < u_max, got %g/%g",
			ErrInvalidProfile, p.ID, p.UMin, p.UMax)
	}
	return nil
}

// Profile identifiers.
const (
	Vaccine    = "vacina"
	Insulin    = "insulina"
	Reagent    = "reagente"
	Solution   = "solucao"
	Antibiotic = "antibiotico"
)

// builtin is the table in display order.
var builtin = []Profile{
	{ID: Vaccine, Name: "Vacinas", TMin: 2, TMax: 8, TOptimum: 5, UMin: 20, UMax: 60},
	{ID: Insulin, Name: "Insulina", TMin: 2, TMax: 8, TOptimum: 5, UMin: 20, UMax: 60},
	{ID: Reagent, Name: "Reagentes", TMin: 15, TMax: 25, TOptimum: 20, UMin: 20, UMax: 60},
	{ID: Solution, Name: "Soluções", TMin: 15, TMax: 25, TOptimum: 20, UMin: 20, UMax: 60},
	{ID: Antibiotic, Name: "Antibióticos", TMin: 8, TMax: 15, TOptimum: 11.5, UMin: 20, UMax: 60},
}

var byID = func() map[string]Profile {
	m := make(map[string]Profile, len(builtin))
	for _, p := range builtin {
		if err := p.Validate(); err != nil {
			panic(err)
		}
		m[p.ID] = p
	}
	return m
}()

// Lookup returns the profile for id. The second result is false for
// unknown identifiers.
func Lookup(id string) (Profile, bool) {
	p, ok := byID[id]
	return p, ok
}

// Get is like Lookup but returns ErrProfileNotFound for unknown identifiers.
func Get(id string) (Profile, error) {
	p, ok := byID[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrProfileNotFound, id)
	}
	return p, nil
}

// All returns a copy of the table in display order.
func All() []Profile {
	out := make([]Profile, len(builtin))
	copy(out, builtin)
	return out
}

// IDs returns the identifiers in display order.
func IDs() []string {
	ids := make([]string, len(builtin))
	for i, p := range builtin {
		ids[i] = p.ID
	}
	return ids
}

// Index returns the display position of id, or -1.
func Index(id string) int {
	for i, p := range builtin {
		if p.ID == id {
			return i
		}
	}
	return -1
}
