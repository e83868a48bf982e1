package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/source"
)

// table describes one persisted relation. Both stores share the column
// order, so row builders and scanners are written once.
type table struct {
	name    string
	columns []string
	keys    []string
	orderBy string
}

func (t table) selectList() string { return strings.Join(t.columns, ", ") }

var (
	signupTable = table{
		name: "jotform_signups",
		columns: []string{"submission_id", "mn_id", "first_name", "middle_name", "last_name",
			"preferred_name", "phone", "personal_email", "uw_email", "submitted_at"},
		keys:    []string{"submission_id"},
		orderBy: "submission_id",
	}
	setupTable = table{
		name:    "jotform_setup",
		columns: []string{"submission_id", "mn_id", "first_name", "last_name", "phone", "email", "submitted_at"},
		keys:    []string{"submission_id"},
		orderBy: "submission_id",
	}
	memberTable = table{
		name:    "givebutter_members",
		columns: []string{"member_id", "first_name", "last_name", "phone", "email", "amount", "goal", "donors"},
		keys:    []string{"member_id"},
		orderBy: "member_id",
	}
	contactTable = table{
		name:    "givebutter_contacts",
		columns: []string{"contact_id", "external_id", "first_name", "last_name", "phone", "email", "tags"},
		keys:    []string{"contact_id"},
		orderBy: "contact_id",
	}
	mentorTable = table{
		name: "mentors",
		columns: []string{"mn_id", "is_placeholder_id", "phone", "personal_email", "uw_email",
			"first_name", "middle_name", "last_name", "preferred_name", "gb_contact_id", "gb_member_id",
			"amount", "is_fundraiser", "has_setup", "status", "signup_submission_id",
			"setup_submission_id", "updated_at"},
		keys:    []string{"mn_id"},
		orderBy: "mn_id",
	}
	identityTable = table{
		name:    "mentor_identities",
		columns: []string{"mn_id", "gb_contact_id", "gb_member_id", "updated_at"},
		keys:    []string{"mn_id"},
		orderBy: "mn_id",
	}
	conflictTable = table{
		name:    "mn_errors",
		columns: []string{"severity", "error_type", "mn_id", "message", "payload", "created_at"},
		orderBy: "id",
	}
	stagingTable = table{
		name: "mn_gb_import",
		columns: []string{"mn_id", "gb_contact_id", "first_name", "last_name", "email", "phone",
			"status_category", "tags"},
		keys:    []string{"mn_id"},
		orderBy: "mn_id",
	}
)

// rawTable resolves a source name to its raw table.
func rawTable(name string) (table, error) {
	switch name {
	case source.NameSignups:
		return signupTable, nil
	case source.NameSetups:
		return setupTable, nil
	case source.NameMembers:
		return memberTable, nil
	case source.NameContacts:
		return contactTable, nil
	}
	return table{}, eris.Errorf("store: unknown raw source %q", name)
}

type scanner interface {
	Scan(dest ...any) error
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func signupRow(s model.RawSignup) []any {
	return []any{s.SubmissionID, s.MnID, s.FirstName, s.MiddleName, s.LastName,
		s.PreferredName, s.Phone, s.PersonalEmail, s.UWEmail, nullTime(s.SubmittedAt)}
}

func scanSignup(sc scanner) (model.RawSignup, error) {
	var s model.RawSignup
	var at *time.Time
	err := sc.Scan(&s.SubmissionID, &s.MnID, &s.FirstName, &s.MiddleName, &s.LastName,
		&s.PreferredName, &s.Phone, &s.PersonalEmail, &s.UWEmail, &at)
	s.SubmittedAt = derefTime(at)
	return s, eris.Wrap(err, "store: scan signup")
}

func setupRow(s model.RawSetupRecord) []any {
	return []any{s.SubmissionID, s.MnID, s.FirstName, s.LastName, s.Phone, s.Email, nullTime(s.SubmittedAt)}
}

func scanSetup(sc scanner) (model.RawSetupRecord, error) {
	var s model.RawSetupRecord
	var at *time.Time
	err := sc.Scan(&s.SubmissionID, &s.MnID, &s.FirstName, &s.LastName, &s.Phone, &s.Email, &at)
	s.SubmittedAt = derefTime(at)
	return s, eris.Wrap(err, "store: scan setup")
}

func memberRow(m model.RawFundraisingMember) []any {
	return []any{m.MemberID, m.FirstName, m.LastName, m.Phone, m.Email, m.Amount, m.Goal, m.Donors}
}

func scanMember(sc scanner) (model.RawFundraisingMember, error) {
	var m model.RawFundraisingMember
	err := sc.Scan(&m.MemberID, &m.FirstName, &m.LastName, &m.Phone, &m.Email, &m.Amount, &m.Goal, &m.Donors)
	return m, eris.Wrap(err, "store: scan member")
}

func contactRow(c model.RawContact) ([]any, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal contact tags")
	}
	return []any{c.ContactID, c.ExternalID, c.FirstName, c.LastName, c.Phone, c.Email, tagsJSON}, nil
}

func scanContact(sc scanner) (model.RawContact, error) {
	var c model.RawContact
	var tagsJSON []byte
	if err := sc.Scan(&c.ContactID, &c.ExternalID, &c.FirstName, &c.LastName, &c.Phone, &c.Email, &tagsJSON); err != nil {
		return c, eris.Wrap(err, "store: scan contact")
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &c.Tags); err != nil {
			return c, eris.Wrapf(err, "store: unmarshal tags for contact %d", c.ContactID)
		}
	}
	return c, nil
}

func mentorRow(m model.Mentor) []any {
	return []any{m.MnID, m.IsPlaceholderID, m.Phone, m.PersonalEmail, m.UWEmail,
		m.FirstName, m.MiddleName, m.LastName, m.PreferredName, m.GBContactID, m.GBMemberID,
		m.Amount, m.IsFundraiser, m.HasSetup, string(m.Status), m.SignupSubmissionID,
		m.SetupSubmissionID, m.UpdatedAt.UTC()}
}

func scanMentor(sc scanner) (model.Mentor, error) {
	var m model.Mentor
	var status string
	err := sc.Scan(&m.MnID, &m.IsPlaceholderID, &m.Phone, &m.PersonalEmail, &m.UWEmail,
		&m.FirstName, &m.MiddleName, &m.LastName, &m.PreferredName, &m.GBContactID, &m.GBMemberID,
		&m.Amount, &m.IsFundraiser, &m.HasSetup, &status, &m.SignupSubmissionID,
		&m.SetupSubmissionID, &m.UpdatedAt)
	m.Status = model.Status(status)
	m.UpdatedAt = m.UpdatedAt.UTC()
	return m, eris.Wrap(err, "store: scan mentor")
}

// identityRows keeps only mentors with at least one resolved id; the ledger
// never learns anything from an unresolved mentor.
func identityRows(mentors []model.Mentor) [][]any {
	var rows [][]any
	for _, m := range mentors {
		if m.IsPlaceholderID || (m.GBContactID == nil && m.GBMemberID == nil) {
			continue
		}
		rows = append(rows, []any{m.MnID, m.GBContactID, m.GBMemberID, m.UpdatedAt.UTC()})
	}
	return rows
}

func scanIdentity(sc scanner) (model.Identity, error) {
	var id model.Identity
	err := sc.Scan(&id.MnID, &id.GBContactID, &id.GBMemberID)
	return id, eris.Wrap(err, "store: scan identity")
}

func conflictRow(c model.Conflict) ([]any, error) {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal payload for %s conflict", c.Type)
	}
	return []any{string(c.Severity), string(c.Type), nullString(c.MnID), c.Message, payload, c.CreatedAt.UTC()}, nil
}

func scanConflict(sc scanner) (model.Conflict, error) {
	var c model.Conflict
	var severity, typ string
	var mnID *string
	var payload []byte
	if err := sc.Scan(&c.ID, &severity, &typ, &mnID, &c.Message, &payload, &c.CreatedAt); err != nil {
		return c, eris.Wrap(err, "store: scan conflict")
	}
	c.Severity = model.Severity(severity)
	c.Type = model.ConflictType(typ)
	c.MnID = derefString(mnID)
	c.CreatedAt = c.CreatedAt.UTC()
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &c.Payload); err != nil {
			return c, eris.Wrapf(err, "store: unmarshal payload for conflict %d", c.ID)
		}
	}
	return c, nil
}

func stagingRow(r model.StagingRow) []any {
	return []any{r.MnID, r.GBContactID, r.FirstName, r.LastName, r.Email, r.Phone, string(r.StatusCategory), r.Tags}
}

func scanStaging(sc scanner) (model.StagingRow, error) {
	var r model.StagingRow
	var status string
	err := sc.Scan(&r.MnID, &r.GBContactID, &r.FirstName, &r.LastName, &r.Email, &r.Phone, &status, &r.Tags)
	r.StatusCategory = model.Status(status)
	return r, eris.Wrap(err, "store: scan staging row")
}

func marshalStats(stats *model.RunStats) ([]byte, error) {
	if stats == nil {
		return nil, nil
	}
	b, err := json.Marshal(stats)
	return b, eris.Wrap(err, "store: marshal run stats")
}

func scanRun(sc scanner) (model.Run, error) {
	var r model.Run
	var status string
	var completedAt *time.Time
	var statsJSON []byte
	var errMsg *string
	if err := sc.Scan(&r.ID, &r.Kind, &status, &r.DryRun, &r.StartedAt, &completedAt, &statsJSON, &errMsg); err != nil {
		return r, eris.Wrap(err, "store: scan run")
	}
	r.Status = model.RunStatus(status)
	r.StartedAt = r.StartedAt.UTC()
	if completedAt != nil {
		t := completedAt.UTC()
		r.CompletedAt = &t
	}
	r.Error = derefString(errMsg)
	if len(statsJSON) > 0 {
		r.Stats = &model.RunStats{}
		if err := json.Unmarshal(statsJSON, r.Stats); err != nil {
			return r, eris.Wrapf(err, "store: unmarshal stats for run %s", r.ID)
		}
	}
	return r, nil
}

const runColumns = "id, kind, status, dry_run, started_at, completed_at, stats, error"

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
