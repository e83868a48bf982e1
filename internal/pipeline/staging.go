package pipeline

import (
	"strings"

	"github.com/sells-group/mentor-sync/internal/model"
)

// DefaultStagingTags are attached to every staged contact.
var DefaultStagingTags = []string{"Mentors 2025"}

var statusTags = map[model.Status]string{
	model.StatusComplete:         "Fully Funded",
	model.StatusNeedsFundraising: "Needs Fundraising",
	model.StatusNeedsPage:        "Needs Page",
	model.StatusNeedsSetup:       "Needs Setup",
}

// BuildStaging projects canonical mentors onto the delivery-platform import
// format, one row per mentor in input order. The personal email is
// preferred over the institutional one and a preferred name replaces the
// legal first name.
func BuildStaging(mentors []model.Mentor, baseTags []string) []model.StagingRow {
	if baseTags == nil {
		baseTags = DefaultStagingTags
	}
	rows := make([]model.StagingRow, 0, len(mentors))
	for _, m := range mentors {
		first := strings.TrimSpace(m.PreferredName)
		if first == "" {
			first = m.FirstName
		}
		email := m.PersonalEmail
		if email == "" {
			email = m.UWEmail
		}

		tags := make([]string, 0, len(baseTags)+1)
		tags = append(tags, baseTags...)
		if t, ok := statusTags[m.Status]; ok {
			tags = append(tags, t)
		}

		rows = append(rows, model.StagingRow{
			MnID:           m.MnID,
			GBContactID:    m.GBContactID,
			FirstName:      first,
			LastName:       m.LastName,
			Email:          email,
			Phone:          m.Phone,
			StatusCategory: m.Status,
			Tags:           strings.Join(tags, ","),
		})
	}
	return rows
}
