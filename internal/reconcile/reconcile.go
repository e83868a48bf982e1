package reconcile

import (
	"context"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mentor-sync/internal/model"
	"github.com/sells-group/mentor-sync/internal/normalize"
)

// Options tunes one reconciliation pass.
type Options struct {
	Threshold        float64
	WithdrawnTag     string
	Workers          int
	PlaceholderStart int
	Now              time.Time
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultFundraisingThreshold
	}
	if strings.TrimSpace(o.WithdrawnTag) == "" {
		o.WithdrawnTag = DefaultWithdrawnTag
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.PlaceholderStart <= 0 {
		o.PlaceholderStart = 1
	}
	if o.Now.IsZero() {
		o.Now = time.Now().UTC()
	}
	return o
}

// Input is everything a pass reads: the four raw sources plus the ids
// persisted by earlier runs.
type Input struct {
	Signups  []model.RawSignup
	Setups   []model.RawSetupRecord
	Members  []model.RawFundraisingMember
	Contacts []model.RawContact
	Prior    map[string]model.Identity
}

// Result is the full output of a pass. Mentors follow signup order.
type Result struct {
	Mentors   []model.Mentor
	Conflicts []model.Conflict
	Stats     model.RunStats
}

// Reconcile turns raw source rows into canonical mentors and conflicts.
// It performs no I/O; the same Input and Options always produce the same
// Result. Matching runs on opts.Workers goroutines over a shared read-only
// index.
func Reconcile(ctx context.Context, in Input, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	sink := NewSink(opts.Now)

	people := AssignIdentifiers(in.Signups, NewPlaceholders(opts.PlaceholderStart), sink)
	people = Dedupe(people, sink)

	matcher := NewMatcher(NewContactIndex(in.Contacts), opts.WithdrawnTag)
	matches, err := matchAll(ctx, matcher, people, opts.Workers)
	if err != nil {
		return nil, err
	}

	res := &Result{Mentors: make([]model.Mentor, 0, len(people))}
	stats := &res.Stats
	stats.Signups = len(in.Signups)
	stats.Setups = len(in.Setups)
	stats.Members = len(in.Members)
	stats.Contacts = len(in.Contacts)
	stats.Unique = len(people)
	stats.StatusCounts = make(map[model.Status]int, len(model.AllStatuses))

	active := make([]int, 0, len(people))
	for i := range people {
		sink.AddAll(matches[i].Conflicts)
		if matches[i].Withdrawn {
			stats.Withdrawn++
			continue
		}
		active = append(active, i)
	}

	// Each contact, member and setup record goes to one person: the
	// strongest match wins, then signup order.
	contactBids := claims[int64]{}
	for _, i := range active {
		if c := matches[i].Contact; c != nil {
			contactBids.offer(c.ContactID, i, contactRank(matches[i].Method))
		}
	}
	contacts := make([]*model.RawContact, len(people))
	for _, i := range active {
		c := matches[i].Contact
		if c == nil {
			continue
		}
		if owner, _ := contactBids.holder(c.ContactID); owner != i {
			sink.Add(sharedContactConflict(people[i], people[owner].Signup.MnID, c, matches[owner].Method))
			continue
		}
		contacts[i] = c
		stats.MatchedContacts++
	}

	roster := NewRosterIndex(in.Members, in.Setups)
	members := make([]*model.RawFundraisingMember, len(people))
	setups := make([]*model.RawSetupRecord, len(people))
	memberBids := claims[int64]{}
	setupBids := claims[string]{}
	for _, i := range active {
		if mem, rank := roster.Member(people[i], contacts[i]); mem != nil {
			members[i] = mem
			memberBids.offer(mem.MemberID, i, rank)
		}
		if setup, rank := roster.Setup(people[i], contacts[i]); setup != nil {
			setups[i] = setup
			setupBids.offer(setup.SubmissionID, i, rank)
		}
	}

	contactOwners := Owners{}
	memberOwners := Owners{}
	for _, i := range active {
		p := people[i]
		if mem := members[i]; mem != nil {
			if owner, _ := memberBids.holder(mem.MemberID); owner != i {
				sink.Add(sharedMemberConflict(p, people[owner].Signup.MnID, mem))
				members[i] = nil
			}
		}
		if setup := setups[i]; setup != nil {
			if owner, _ := setupBids.holder(setup.SubmissionID); owner != i {
				sink.Add(sharedSetupConflict(p, people[owner].Signup.MnID, setup))
				setups[i] = nil
			}
		}

		m := buildMentor(p, contacts[i], members[i], setups[i], opts)
		if m.GBContactID != nil {
			contactOwners[*m.GBContactID] = m.MnID
		}
		if m.GBMemberID != nil {
			memberOwners[*m.GBMemberID] = m.MnID
		}
		res.Mentors = append(res.Mentors, m)
	}

	// Prior ids only fill gaps left after every fresh match is placed.
	for i := range res.Mentors {
		m := &res.Mentors[i]
		kept := PreserveIdentity(m, in.Prior, contactOwners, memberOwners)
		if kept.Contact {
			stats.PreservedContacts++
		}
		if kept.Member {
			stats.PreservedMembers++
		}
		if kept.ContactHeldBy != "" {
			sink.Add(priorContactConflict(m, *in.Prior[m.MnID].GBContactID, kept.ContactHeldBy))
		}
		if kept.MemberHeldBy != "" {
			sink.Add(priorMemberConflict(m, *in.Prior[m.MnID].GBMemberID, kept.MemberHeldBy))
		}
		stats.StatusCounts[m.Status]++
	}

	sink.AddAll(DetectDuplicateContacts(in.Contacts, opts.Now))

	stats.Mentors = len(res.Mentors)
	res.Conflicts = sink.Conflicts()
	stats.ConflictsBySeverity = sink.CountBySeverity()
	return res, nil
}

// matchAll resolves every person concurrently. Results are stored by index
// so output order never depends on scheduling.
func matchAll(ctx context.Context, m *Matcher, people []Person, workers int) ([]MatchResult, error) {
	out := make([]MatchResult, len(people))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range people {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = m.Match(people[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "reconcile: match contacts")
	}
	return out, nil
}

func buildMentor(p Person, contact *model.RawContact, member *model.RawFundraisingMember, setup *model.RawSetupRecord, opts Options) model.Mentor {
	s := p.Signup
	m := model.Mentor{
		MnID:               s.MnID,
		IsPlaceholderID:    p.Placeholder,
		Phone:              p.Phone,
		PersonalEmail:      normalize.EmailOrEmpty(s.PersonalEmail),
		UWEmail:            normalize.EmailOrEmpty(s.UWEmail),
		FirstName:          strings.TrimSpace(s.FirstName),
		MiddleName:         strings.TrimSpace(s.MiddleName),
		LastName:           strings.TrimSpace(s.LastName),
		PreferredName:      strings.TrimSpace(s.PreferredName),
		SignupSubmissionID: s.SubmissionID,
		UpdatedAt:          opts.Now,
	}
	if contact != nil {
		m.GBContactID = model.Int64Ptr(contact.ContactID)
	}
	if member != nil {
		m.GBMemberID = model.Int64Ptr(member.MemberID)
		m.Amount = member.Amount
		m.IsFundraiser = true
	}
	if setup != nil {
		m.HasSetup = true
		m.SetupSubmissionID = setup.SubmissionID
	}
	m.Status = ComputeStatus(StatusInput{
		FullyFunded: FullyFunded(m.Amount, opts.Threshold),
		IsMember:    m.IsFundraiser,
		HasSetup:    m.HasSetup,
	})
	return m
}
