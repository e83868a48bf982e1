// Package export writes reconciliation output to XLSX workbooks for
// operators who review conflicts and mentor status outside the database.
package export

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/mentor-sync/internal/model"
)

// Sheet names.
const (
	SheetMentors   = "Mentors"
	SheetConflicts = "Conflicts"
	SheetStaging   = "Staging"
)

var (
	mentorHeader = []string{
		"mn_id", "placeholder", "first_name", "middle_name", "last_name", "preferred_name",
		"phone", "personal_email", "uw_email", "gb_contact_id", "gb_member_id",
		"amount", "is_fundraiser", "has_setup", "status", "signup_submission_id",
		"setup_submission_id", "updated_at",
	}
	conflictHeader = []string{"id", "severity", "type", "mn_id", "message", "payload", "created_at"}
	stagingHeader  = []string{"mn_id", "gb_contact_id", "first_name", "last_name", "email", "phone", "status_category", "tags"}
)

// Report is the content of one workbook. Nil sections are omitted; empty
// non-nil sections produce a header-only sheet.
type Report struct {
	Mentors   []model.Mentor
	Conflicts []model.Conflict
	Staging   []model.StagingRow
}

// Write saves r to path as an XLSX workbook with one sheet per section.
func Write(path string, r Report) error {
	if r.Mentors == nil && r.Conflicts == nil && r.Staging == nil {
		return eris.New("export: nothing to write")
	}

	f := xlsx.NewFile()
	if r.Mentors != nil {
		rows := make([][]string, 0, len(r.Mentors))
		for i := range r.Mentors {
			rows = append(rows, mentorRow(&r.Mentors[i]))
		}
		if err := addSheet(f, SheetMentors, mentorHeader, rows); err != nil {
			return err
		}
	}
	if r.Conflicts != nil {
		rows := make([][]string, 0, len(r.Conflicts))
		for i := range r.Conflicts {
			row, err := conflictRow(&r.Conflicts[i])
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if err := addSheet(f, SheetConflicts, conflictHeader, rows); err != nil {
			return err
		}
	}
	if r.Staging != nil {
		rows := make([][]string, 0, len(r.Staging))
		for i := range r.Staging {
			rows = append(rows, stagingRow(&r.Staging[i]))
		}
		if err := addSheet(f, SheetStaging, stagingHeader, rows); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}
	appendRow(sheet, header)
	for _, r := range rows {
		appendRow(sheet, r)
	}
	return nil
}

func appendRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}

func mentorRow(m *model.Mentor) []string {
	return []string{
		m.MnID,
		strconv.FormatBool(m.IsPlaceholderID),
		m.FirstName,
		m.MiddleName,
		m.LastName,
		m.PreferredName,
		m.Phone,
		m.PersonalEmail,
		m.UWEmail,
		optionalID(m.GBContactID),
		optionalID(m.GBMemberID),
		strconv.FormatFloat(m.Amount, 'f', 2, 64),
		strconv.FormatBool(m.IsFundraiser),
		strconv.FormatBool(m.HasSetup),
		string(m.Status),
		m.SignupSubmissionID,
		m.SetupSubmissionID,
		timestamp(m.UpdatedAt),
	}
}

func conflictRow(c *model.Conflict) ([]string, error) {
	payload := ""
	if len(c.Payload) > 0 {
		b, err := json.Marshal(c.Payload)
		if err != nil {
			return nil, eris.Wrapf(err, "export: marshal payload for conflict %d", c.ID)
		}
		payload = string(b)
	}
	return []string{
		strconv.FormatInt(c.ID, 10),
		string(c.Severity),
		string(c.Type),
		c.MnID,
		c.Message,
		payload,
		timestamp(c.CreatedAt),
	}, nil
}

func stagingRow(s *model.StagingRow) []string {
	return []string{
		s.MnID,
		optionalID(s.GBContactID),
		s.FirstName,
		s.LastName,
		s.Email,
		s.Phone,
		string(s.StatusCategory),
		s.Tags,
	}
}

func optionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// FileName builds a dated default file name such as
// "mentor-sync-conflicts-20250901.xlsx".
func FileName(kind string, now time.Time) string {
	return "mentor-sync-" + strings.ToLower(kind) + "-" + now.UTC().Format("20060102") + ".xlsx"
}
