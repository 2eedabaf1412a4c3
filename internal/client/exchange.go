package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/garyjia/trip-expense/internal/domain/entity"
)

// Offline exchange file kinds
const (
	MemberFileType     = "member-expenses"
	TripConfigFileType = "trip-config"
	ExchangeVersion    = 2
)

// MemberFile carries one member's expenses to the leader without a server.
// Photos are never included.
type MemberFile struct {
	Type       string            `json:"type"`
	Version    int               `json:"version"`
	TripCode   string            `json:"tripCode,omitempty"`
	MemberName string            `json:"memberName"`
	TripID     string            `json:"tripId"`
	Expenses   []*entity.Expense `json:"expenses"`
	ExportDate string            `json:"exportDate"`
}

// TripConfigFile shares a trip header, and optionally its people and
// expenses, between devices
type TripConfigFile struct {
	Type      string            `json:"type"`
	Version   int               `json:"version"`
	TripCode  string            `json:"tripCode,omitempty"`
	TripInfo  entity.TripInfo   `json:"tripInfo"`
	Employees []entity.Employee `json:"employees,omitempty"`
	Expenses  []*entity.Expense `json:"expenses,omitempty"`
}

// Merged is the combination of several member files
type Merged struct {
	TripCode string
	Members  []*MemberFile
	// Expenses are every member's entries with belongTo defaulted to the member
	Expenses []*entity.Expense
}

// ExportMemberExpenses packages the session's expenses under memberName
func (s *Session) ExportMemberExpenses(memberName string, now time.Time) (*MemberFile, error) {
	memberName = strings.TrimSpace(memberName)
	if memberName == "" {
		return nil, fmt.Errorf("%w: member name is required", entity.ErrValidation)
	}
	expenses := s.Expenses()
	if len(expenses) == 0 {
		return nil, fmt.Errorf("%w: no expenses to export", entity.ErrValidation)
	}

	return &MemberFile{
		Type:       MemberFileType,
		Version:    ExchangeVersion,
		TripCode:   s.TripCode(),
		MemberName: memberName,
		TripID:     s.TripInfo().ID(),
		Expenses:   stripPhotos(expenses),
		ExportDate: entity.FormatDate(now),
	}, nil
}

// MemberFileName names an exported member file
func MemberFileName(memberName string, now time.Time) string {
	return fmt.Sprintf("費用_%s_%s.json", strings.TrimSpace(memberName), entity.FormatDate(now))
}

// ExportTripConfig packages the trip header and optionally people and expenses
func (s *Session) ExportTripConfig(includeEmployees, includeExpenses bool) *TripConfigFile {
	f := &TripConfigFile{
		Type:     TripConfigFileType,
		Version:  ExchangeVersion,
		TripCode: s.TripCode(),
		TripInfo: s.TripInfo(),
	}
	if includeEmployees {
		f.Employees = s.Employees()
	}
	if includeExpenses {
		f.Expenses = stripPhotos(s.Expenses())
	}
	return f
}

// ImportTripConfig adopts a shared trip header. Employees and expenses
// replace local ones only when the session has none or overwrite is set.
func (s *Session) ImportTripConfig(ctx context.Context, f *TripConfigFile, overwrite bool) error {
	if err := s.SetTripInfo(f.TripInfo); err != nil {
		return err
	}
	if f.TripCode != "" {
		s.SetTripCode(f.TripCode)
	}
	if len(f.Employees) > 0 && (overwrite || len(s.Employees()) == 0) {
		if err := s.SetEmployees(f.Employees); err != nil {
			return err
		}
	}
	if len(f.Expenses) > 0 && (overwrite || len(s.Expenses()) == 0) {
		for _, exp := range s.Expenses() {
			if err := s.RemoveExpense(ctx, exp.ID); err != nil {
				return err
			}
		}
		for _, exp := range f.Expenses {
			if _, err := s.AddExpense(*exp); err != nil {
				return err
			}
		}
	}
	return nil
}

// MergeMemberExpenses combines member files. A later file replaces an
// earlier one from the same member.
func MergeMemberExpenses(files []*MemberFile) *Merged {
	merged := &Merged{}
	index := make(map[string]int)
	for _, f := range files {
		if f.TripCode != "" && merged.TripCode == "" {
			merged.TripCode = f.TripCode
		}
		if i, ok := index[f.MemberName]; ok {
			merged.Members[i] = f
			continue
		}
		index[f.MemberName] = len(merged.Members)
		merged.Members = append(merged.Members, f)
	}

	for _, m := range merged.Members {
		for _, exp := range m.Expenses {
			c := exp.Clone()
			if c.BelongTo == "" {
				c.BelongTo = m.MemberName
			}
			c.EmployeeName = m.MemberName
			merged.Expenses = append(merged.Expenses, c)
		}
	}
	return merged
}

// AdoptMerged adds merged member expenses to the session, taking the
// trip code from the files when the session has none
func (s *Session) AdoptMerged(m *Merged) (int, error) {
	if m.TripCode != "" && s.TripCode() == "" {
		s.SetTripCode(m.TripCode)
	}
	added := 0
	for _, exp := range m.Expenses {
		c := *exp
		c.ID = ""
		if _, err := s.AddExpense(c); err != nil {
			return added, fmt.Errorf("member %s: %w", exp.EmployeeName, err)
		}
		added++
	}
	return added, nil
}

// WriteExchangeFile encodes an exchange file as indented JSON
func WriteExchangeFile(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// ReadMemberFile decodes a member file, rejecting other kinds
func ReadMemberFile(r io.Reader) (*MemberFile, error) {
	var f MemberFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: unreadable member file: %v", entity.ErrValidation, err)
	}
	if f.Type != MemberFileType {
		return nil, fmt.Errorf("%w: not a member expense file (type %q)", entity.ErrValidation, f.Type)
	}
	if strings.TrimSpace(f.MemberName) == "" {
		return nil, fmt.Errorf("%w: member file has no member name", entity.ErrValidation)
	}
	return &f, nil
}

// ReadTripConfigFile decodes a trip config file, rejecting other kinds
func ReadTripConfigFile(r io.Reader) (*TripConfigFile, error) {
	var f TripConfigFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: unreadable trip file: %v", entity.ErrValidation, err)
	}
	if f.Type != TripConfigFileType {
		return nil, fmt.Errorf("%w: not a trip config file (type %q)", entity.ErrValidation, f.Type)
	}
	return &f, nil
}

func stripPhotos(expenses []*entity.Expense) []*entity.Expense {
	out := make([]*entity.Expense, 0, len(expenses))
	for _, exp := range expenses {
		c := exp.Clone()
		c.Photo = ""
		c.PhotoData = ""
		out = append(out, c)
	}
	return out
}
