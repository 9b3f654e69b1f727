package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/studyhub/group-requests/internal/core/domain"
	"github.com/studyhub/group-requests/internal/core/ports"
	"github.com/studyhub/group-requests/internal/infrastructure/db/memory"
)

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.RequestEvent
}

func (p *recordingPublisher) Publish(events ...domain.RequestEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

// failingDirectory wraps a real store and fails Persist on demand.
type failingDirectory struct {
	ports.Directory
	persistErr error
}

func (d *failingDirectory) Persist(ctx context.Context, c ports.Changeset) error {
	if d.persistErr != nil {
		return d.persistErr
	}
	return d.Directory.Persist(ctx, c)
}

// newFixture seeds users u1, u2 and groups g1, g2 (course c1), g3 (course c2).
func newFixture() (*memory.Store, *recordingPublisher, *RequestService) {
	store := memory.New()
	store.PutUser(&domain.User{ID: "u1", Username: "ana"})
	store.PutUser(&domain.User{ID: "u2", Username: "ben"})
	store.PutUser(&domain.User{ID: "owner", Username: "olga"})
	store.PutGroup(&domain.Group{ID: "g1", CourseID: "c1", Members: []string{"owner"}})
	store.PutGroup(&domain.Group{ID: "g2", CourseID: "c1"})
	store.PutGroup(&domain.Group{ID: "g3", CourseID: "c2"})

	pub := &recordingPublisher{}
	svc := newTestService(store, pub)
	return store, pub, svc
}

func newTestService(dir ports.Directory, pub ports.EventPublisher) *RequestService {
	svc := NewRequestService(dir, nil, pub, zerolog.Nop())
	seq := 0
	svc.newID = func() (string, error) {
		seq++
		return fmt.Sprintf("req-%03d", seq), nil
	}
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return svc
}

func mustCreate(t *testing.T, svc *RequestService, groupID, userID string) *domain.Request {
	t.Helper()
	r, err := svc.Create(context.Background(), groupID, userID)
	if err != nil {
		t.Fatalf("Create(%s, %s): %v", groupID, userID, err)
	}
	return r
}

func statusOf(t *testing.T, store *memory.Store, id string) domain.RequestStatus {
	t.Helper()
	r, err := store.FindRequest(context.Background(), id)
	if err != nil {
		t.Fatalf("FindRequest(%s): %v", id, err)
	}
	return r.Status
}

func countMember(g *domain.Group, userID string) int {
	n := 0
	for _, m := range g.Members {
		if m == userID {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestRequestService_Create_Pending(t *testing.T) {
	store, pub, svc := newFixture()

	r := mustCreate(t, svc, "g1", "u1")

	if r.Status != domain.StatusPending {
		t.Errorf("expected PENDING, got %s", r.Status)
	}
	if r.CourseID != "c1" {
		t.Errorf("expected course copied from group, got %q", r.CourseID)
	}
	if r.ID == "" || r.UserID != "u1" || r.GroupID != "g1" {
		t.Errorf("unexpected request: %+v", r)
	}
	if statusOf(t, store, r.ID) != domain.StatusPending {
		t.Error("request was not persisted")
	}
	g, _ := store.FindGroup(context.Background(), "g1")
	if g.HasMember("u1") {
		t.Error("creation must not grant membership")
	}
	if len(pub.events) != 1 || pub.events[0].Cause != domain.CauseCreate {
		t.Errorf("expected one create event, got %+v", pub.events)
	}
}

func TestRequestService_Create_Duplicate(t *testing.T) {
	store, _, svc := newFixture()
	mustCreate(t, svc, "g1", "u1")

	_, err := svc.Create(context.Background(), "g1", "u1")
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	all, _ := store.RequestsMatching(context.Background(), ports.RequestFilter{})
	if len(all) != 1 {
		t.Fatalf("expected exactly one stored request, got %d", len(all))
	}
}

func TestRequestService_Create_DuplicateWhileAccepted(t *testing.T) {
	_, _, svc := newFixture()
	r := mustCreate(t, svc, "g1", "u1")
	if err := svc.Accept(context.Background(), r.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if _, err := svc.Create(context.Background(), "g1", "u1"); !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest after acceptance, got %v", err)
	}
}

func TestRequestService_Create_AllowedAfterRejectOrWithdraw(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newFixture()

	first := mustCreate(t, svc, "g1", "u1")
	if err := svc.Reject(ctx, first.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	second := mustCreate(t, svc, "g1", "u1")
	if err := svc.Withdraw(ctx, second.ID); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	third := mustCreate(t, svc, "g1", "u1")
	if third.ID == first.ID || third.ID == second.ID {
		t.Fatalf("expected a fresh id, got %s", third.ID)
	}
}

func TestRequestService_Create_NotFound(t *testing.T) {
	_, _, svc := newFixture()

	if _, err := svc.Create(context.Background(), "missing", "u1"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "g1", "ghost"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRequestService_Create_ConcurrentDuplicatesYieldOne(t *testing.T) {
	store := memory.New()
	store.PutUser(&domain.User{ID: "u1"})
	store.PutGroup(&domain.Group{ID: "g1", CourseID: "c1"})
	svc := NewRequestService(store, nil, nil, zerolog.Nop())

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, duplicates := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(context.Background(), "g1", "u1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrDuplicateRequest):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || duplicates != callers-1 {
		t.Fatalf("expected 1 success and %d duplicates, got %d and %d", callers-1, succeeded, duplicates)
	}
}

// ---------------------------------------------------------------------------
// Accept
// ---------------------------------------------------------------------------

func TestRequestService_Accept_CascadesWithinCourseOnly(t *testing.T) {
	ctx := context.Background()
	store, pub, svc := newFixture()
	r1 := mustCreate(t, svc, "g1", "u1")
	r2 := mustCreate(t, svc, "g2", "u1")
	r3 := mustCreate(t, svc, "g3", "u1")
	other := mustCreate(t, svc, "g2", "u2")
	pub.events = nil

	if err := svc.Accept(ctx, r1.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	if got := statusOf(t, store, r1.ID); got != domain.StatusAccepted {
		t.Errorf("r1: expected ACCEPTED, got %s", got)
	}
	if got := statusOf(t, store, r2.ID); got != domain.StatusWithdrawn {
		t.Errorf("r2 (same course): expected WITHDRAWN, got %s", got)
	}
	if got := statusOf(t, store, r3.ID); got != domain.StatusPending {
		t.Errorf("r3 (other course): expected PENDING, got %s", got)
	}
	if got := statusOf(t, store, other.ID); got != domain.StatusPending {
		t.Errorf("other user's request: expected PENDING, got %s", got)
	}

	g1, _ := store.FindGroup(ctx, "g1")
	if countMember(g1, "u1") != 1 || g1.Members[len(g1.Members)-1] != "u1" {
		t.Errorf("expected u1 appended once, members: %v", g1.Members)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected accept + cascade events, got %+v", pub.events)
	}
	if pub.events[1].Cause != domain.CauseCascade || pub.events[1].TriggeredBy != r1.ID {
		t.Errorf("unexpected cascade event: %+v", pub.events[1])
	}
}

func TestRequestService_Accept_MembershipExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newFixture()
	r := mustCreate(t, svc, "g2", "u1")

	if err := svc.Accept(ctx, r.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	err := svc.Accept(ctx, r.ID)
	if !errors.Is(err, domain.ErrInvalidTransition) || err.Error() != "already accepted" {
		t.Fatalf("expected \"already accepted\", got %v", err)
	}

	g2, _ := store.FindGroup(ctx, "g2")
	if countMember(g2, "u1") != 1 {
		t.Fatalf("expected u1 exactly once, members: %v", g2.Members)
	}
}

func TestRequestService_Accept_MissingGroupOrUserLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutUser(&domain.User{ID: "u1"})
	store.PutGroup(&domain.Group{ID: "g1", CourseID: "c1"})
	_ = store.Persist(ctx, ports.Changeset{Created: []*domain.Request{
		{ID: "orphan-group", UserID: "u1", GroupID: "gone", CourseID: "c1", Status: domain.StatusPending},
		{ID: "orphan-user", UserID: "gone", GroupID: "g1", CourseID: "c1", Status: domain.StatusPending},
	}})
	svc := NewRequestService(store, nil, nil, zerolog.Nop())

	if err := svc.Accept(ctx, "orphan-group"); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
	if err := svc.Accept(ctx, "orphan-user"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
	if statusOf(t, store, "orphan-group") != domain.StatusPending || statusOf(t, store, "orphan-user") != domain.StatusPending {
		t.Error("failed accept changed request status")
	}
	g1, _ := store.FindGroup(ctx, "g1")
	if len(g1.Members) != 0 {
		t.Errorf("failed accept changed membership: %v", g1.Members)
	}
}

func TestRequestService_Accept_PersistFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newFixture()
	r1 := mustCreate(t, svc, "g1", "u1")
	r2 := mustCreate(t, svc, "g2", "u1")

	broken := newTestService(&failingDirectory{Directory: store, persistErr: errors.New("disk full")}, nil)
	if err := broken.Accept(ctx, r1.ID); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected persist error, got %v", err)
	}

	if statusOf(t, store, r1.ID) != domain.StatusPending || statusOf(t, store, r2.ID) != domain.StatusPending {
		t.Fatal("statuses changed despite failed persist")
	}
	g1, _ := store.FindGroup(ctx, "g1")
	if g1.HasMember("u1") {
		t.Fatal("membership granted despite failed persist")
	}
}

// ---------------------------------------------------------------------------
// Reject / Withdraw / terminality
// ---------------------------------------------------------------------------

func TestRequestService_RejectThenRejectAgain(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newFixture()
	r := mustCreate(t, svc, "g1", "u1")

	if err := svc.Reject(ctx, r.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	err := svc.Reject(ctx, r.ID)
	if err == nil || err.Error() != "already rejected" {
		t.Fatalf("expected \"already rejected\", got %v", err)
	}
	if statusOf(t, store, r.ID) != domain.StatusRejected {
		t.Fatal("expected REJECTED")
	}
}

func TestRequestService_Withdraw(t *testing.T) {
	ctx := context.Background()
	store, _, svc := newFixture()
	r := mustCreate(t, svc, "g1", "u1")

	if err := svc.Withdraw(ctx, r.ID); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if statusOf(t, store, r.ID) != domain.StatusWithdrawn {
		t.Fatal("expected WITHDRAWN")
	}
	g1, _ := store.FindGroup(ctx, "g1")
	if g1.HasMember("u1") {
		t.Fatal("withdraw must not grant membership")
	}
}

func TestRequestService_TerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	ops := map[domain.Action]func(*RequestService, string) error{
		domain.ActionAccept:   func(s *RequestService, id string) error { return s.Accept(ctx, id) },
		domain.ActionReject:   func(s *RequestService, id string) error { return s.Reject(ctx, id) },
		domain.ActionWithdraw: func(s *RequestService, id string) error { return s.Withdraw(ctx, id) },
	}

	for settle, settleFn := range ops {
		for action, fn := range ops {
			t.Run(string(settle)+"_then_"+string(action), func(t *testing.T) {
				store, _, svc := newFixture()
				r := mustCreate(t, svc, "g2", "u1")
				if err := settleFn(svc, r.ID); err != nil {
					t.Fatalf("settle with %s: %v", settle, err)
				}
				terminal := statusOf(t, store, r.ID)
				before, _ := store.FindGroup(ctx, "g2")

				err := fn(svc, r.ID)
				var te *domain.TransitionError
				if !errors.As(err, &te) {
					t.Fatalf("expected TransitionError, got %v", err)
				}
				if !strings.Contains(err.Error(), strings.ToLower(string(terminal))) {
					t.Errorf("message %q does not mention %s", err.Error(), terminal)
				}
				if statusOf(t, store, r.ID) != terminal {
					t.Errorf("status changed from %s", terminal)
				}
				after, _ := store.FindGroup(ctx, "g2")
				if len(after.Members) != len(before.Members) {
					t.Errorf("membership changed: %v -> %v", before.Members, after.Members)
				}
			})
		}
	}
}

func TestRequestService_TransitionUnknownRequest(t *testing.T) {
	_, _, svc := newFixture()
	for _, err := range []error{
		svc.Accept(context.Background(), "nope"),
		svc.Reject(context.Background(), "nope"),
		svc.Withdraw(context.Background(), "nope"),
	} {
		if !errors.Is(err, domain.ErrRequestNotFound) || err.Error() != "not found" {
			t.Errorf("expected \"not found\", got %v", err)
		}
	}
}

func TestRequestService_LockTimeout(t *testing.T) {
	store, _, _ := newFixture()
	lock := NewLocalLocker()
	svc := NewRequestService(store, lock, nil, zerolog.Nop())

	unlock, err := lock.Lock(context.Background())
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.Create(ctx, "g1", "u1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Listings
// ---------------------------------------------------------------------------

func TestRequestService_Listings(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newFixture()
	a := mustCreate(t, svc, "g1", "u1")
	b := mustCreate(t, svc, "g1", "u2")
	c := mustCreate(t, svc, "g3", "u1")
	if err := svc.Reject(ctx, b.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	forGroup, err := svc.ListForGroup(ctx, "g1", "")
	if err != nil || len(forGroup) != 2 || forGroup[0].ID != a.ID || forGroup[1].ID != b.ID {
		t.Fatalf("ListForGroup: %+v, %v", forGroup, err)
	}
	pendingForGroup, _ := svc.ListForGroup(ctx, "g1", domain.StatusPending)
	if len(pendingForGroup) != 1 || pendingForGroup[0].ID != a.ID {
		t.Fatalf("ListForGroup(PENDING): %+v", pendingForGroup)
	}

	sent, _ := svc.ListSentByUser(ctx, "u1", "")
	if len(sent) != 2 || sent[0].ID != a.ID || sent[1].ID != c.ID {
		t.Fatalf("ListSentByUser: %+v", sent)
	}

	received, _ := svc.ListReceivedByUser(ctx, "owner", "")
	if len(received) != 2 {
		t.Fatalf("ListReceivedByUser(owner): %+v", received)
	}
	rejected, _ := svc.ListReceivedByUser(ctx, "owner", domain.StatusRejected)
	if len(rejected) != 1 || rejected[0].ID != b.ID {
		t.Fatalf("ListReceivedByUser(owner, REJECTED): %+v", rejected)
	}

	none, err := svc.ListReceivedByUser(ctx, "u2", "")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("expected empty list for user without groups, got %#v, %v", none, err)
	}

	if _, err := svc.ListForGroup(ctx, "g1", "archived"); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// End to end
// ---------------------------------------------------------------------------

func TestRequestService_EndToEnd_AcceptJoinsGroup(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.PutUser(&domain.User{ID: "u1"})
	store.PutGroup(&domain.Group{ID: "g1", CourseID: "c1"})
	store.PutGroup(&domain.Group{ID: "g9", CourseID: "c1"})
	svc := NewRequestService(store, nil, nil, zerolog.Nop())

	r, err := svc.Create(ctx, "g1", "u1")
	if err != nil || r.Status != domain.StatusPending {
		t.Fatalf("Create: %+v, %v", r, err)
	}
	sibling, _ := svc.Create(ctx, "g9", "u1")

	if err := svc.Accept(ctx, r.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if domain.SuccessMessage(domain.ActionAccept) != "accepted" {
		t.Fatal("unexpected success message")
	}
	g1, _ := store.FindGroup(ctx, "g1")
	if !g1.HasMember("u1") {
		t.Fatal("u1 not added to g1")
	}
	if statusOf(t, store, sibling.ID) != domain.StatusWithdrawn {
		t.Fatal("sibling request not withdrawn")
	}
}

// panickingDirectory wraps a real store and panics on FindRequest when armed.
type panickingDirectory struct {
	ports.Directory
	armed bool
}

func (d *panickingDirectory) FindRequest(ctx context.Context, id string) (*domain.Request, error) {
	if d.armed {
		panic("directory exploded")
	}
	return d.Directory.FindRequest(ctx, id)
}

func TestRequestService_PanicReleasesLock(t *testing.T) {
	store, _, _ := newFixture()
	dir := &panickingDirectory{Directory: store, armed: true}
	svc := newTestService(dir, nil)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = svc.Reject(context.Background(), "req-001")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := svc.Create(ctx, "g1", "u1"); err != nil {
		t.Fatalf("lock still held after panic: %v", err)
	}
}

func TestRequestService_RolesFor(t *testing.T) {
	_, _, svc := newFixture()
	r := mustCreate(t, svc, "g1", "u1")
	ctx := context.Background()

	tests := []struct {
		user string
		want []domain.Role
	}{
		{"u1", []domain.Role{domain.RoleRequester}},
		{"owner", []domain.Role{domain.RoleGroupMember}},
		{"u2", nil},
	}
	for _, tt := range tests {
		got, err := svc.RolesFor(ctx, r.ID, tt.user)
		if err != nil {
			t.Fatalf("RolesFor(%s): %v", tt.user, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("RolesFor(%s) = %v, want %v", tt.user, got, tt.want)
		}
	}

	if err := svc.Accept(ctx, r.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	got, err := svc.RolesFor(ctx, r.ID, "u1")
	if err != nil {
		t.Fatalf("RolesFor after accept: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("accepted requester should hold both roles, got %v", got)
	}

	if _, err := svc.RolesFor(ctx, "missing", "u1"); !errors.Is(err, domain.ErrRequestNotFound) {
		t.Errorf("expected ErrRequestNotFound, got %v", err)
	}
}
