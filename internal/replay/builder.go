package replay

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/schema"
)

// Builder reconstructs the snapshot history of one issue from its current state and change log.
// A Builder holds no per-issue state and may be shared by concurrent workers.
type Builder struct {
	resolver schema.PersonResolver
	logger   *zap.Logger
}

// NewBuilder constructs a builder. A nil resolver leaves every person unresolved.
func NewBuilder(resolver schema.PersonResolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{resolver: resolver, logger: logger}
}

// Result is the output of one replay.
type Result struct {
	Snapshots []domain.Snapshot
	Anomalies []Anomaly
}

// Count returns the number of anomalies of a kind.
func (r Result) Count(kind AnomalyKind) int {
	n := 0
	for _, a := range r.Anomalies {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

type entry struct {
	event   domain.ChangeEvent
	attr    schema.Attribute
	arrival int
}

// Replay returns snapshot #0 (the inferred initial state) followed by one snapshot per mapped
// change event in chronological order. Unmapped labels, unknown people and malformed values are
// reported as anomalies; an error is returned only when the context is done or the person
// resolver fails for a reason other than a missing person.
func (b *Builder) Replay(
	ctx context.Context,
	issueID int64,
	current domain.CurrentState,
	events []domain.ChangeEvent,
	adapter schema.Adapter,
) (Result, error) {

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	r := &run{
		ctx:      ctx,
		issueID:  issueID,
		adapter:  adapter,
		resolver: b.resolver,
		logger:   b.logger.With(zap.Int64("issue_id", issueID), zap.String("tracker_kind", string(adapter.Kind()))),
		people:   make(map[string]personLookup),
	}

	entries := r.mappedEntries(events)

	initial, err := r.initialSnapshot(current, entries)
	if err != nil {
		return Result{}, err
	}

	snapshots := make([]domain.Snapshot, 0, len(entries)+1)
	snapshots = append(snapshots, initial)

	prev := initial
	for _, e := range entries {
		next, err := r.apply(prev, e)
		if err != nil {
			return Result{}, err
		}
		snapshots = append(snapshots, next)
		prev = next
	}

	return Result{Snapshots: snapshots, Anomalies: r.anomalies}, nil
}

type personLookup struct {
	value domain.Value
	err   error
}

type run struct {
	ctx       context.Context
	issueID   int64
	adapter   schema.Adapter
	resolver  schema.PersonResolver
	logger    *zap.Logger
	people    map[string]personLookup
	anomalies []Anomaly
}

// mappedEntries drops unmapped labels and orders the rest by time, then label, then arrival.
func (r *run) mappedEntries(events []domain.ChangeEvent) []entry {
	entries := make([]entry, 0, len(events))
	unmapped := make(map[string]bool)

	for i, ev := range events {
		attr, ok := r.adapter.Lookup(ev.Field)
		if !ok {
			if !unmapped[ev.Field] {
				unmapped[ev.Field] = true
				r.anomalies = append(r.anomalies, Anomaly{
					Kind:  AnomalyUnmappedField,
					Field: ev.Field,
				})
			}
			continue
		}
		entries = append(entries, entry{event: ev, attr: attr, arrival: i})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.event.ChangedAt.Equal(b.event.ChangedAt) {
			return a.event.ChangedAt.Before(b.event.ChangedAt)
		}
		if a.event.Field != b.event.Field {
			return a.event.Field < b.event.Field
		}
		return a.arrival < b.arrival
	})

	if len(unmapped) > 0 {
		r.logger.Debug("ignoring unmapped change-log fields", zap.Int("fields", len(unmapped)))
	}
	return entries
}

func (r *run) initialSnapshot(current domain.CurrentState, entries []entry) (domain.Snapshot, error) {
	earliest := make(map[string]entry)
	for _, e := range entries {
		if _, seen := earliest[e.attr.Name]; !seen {
			earliest[e.attr.Name] = e
		}
	}

	values := make(map[string]domain.Value, len(r.adapter.Attributes()))
	for _, attr := range r.adapter.Attributes() {
		first, changed := earliest[attr.Name]
		if !changed {
			values[attr.Name] = current.Values[attr.Name]
			continue
		}
		v, err := r.coerce(attr, first.event, first.event.OldValue)
		if err != nil {
			if !errors.Is(err, domain.ErrValueCoercion) {
				return domain.Snapshot{}, err
			}
			v = domain.Null()
		}
		values[attr.Name] = v
	}

	recordedAt := current.SubmittedAt
	if len(entries) > 0 && (recordedAt.IsZero() || entries[0].event.ChangedAt.Before(recordedAt)) {
		recordedAt = entries[0].event.ChangedAt
	}

	submittedBy := current.SubmittedBy
	if submittedBy.IsNull() {
		submittedBy = domain.UnknownPerson()
	}

	return domain.NewSnapshot(r.issueID, current.TrackerID, current.Issue, submittedBy, recordedAt, values), nil
}

func (r *run) apply(prev domain.Snapshot, e entry) (domain.Snapshot, error) {
	author, err := r.author(e.event)
	if err != nil {
		return domain.Snapshot{}, err
	}

	v, err := r.coerce(e.attr, e.event, e.event.NewValue)
	if err != nil {
		if !errors.Is(err, domain.ErrValueCoercion) {
			return domain.Snapshot{}, err
		}
		v = prev.Value(e.attr.Name)
	}

	return prev.With(e.attr.Name, v, author, e.event.ChangedAt), nil
}

// coerce converts raw text for attr. Unknown people come back as the unknown-person value with a
// nil error; value coercion failures are recorded and returned wrapped in ErrValueCoercion.
func (r *run) coerce(attr schema.Attribute, ev domain.ChangeEvent, raw string) (domain.Value, error) {
	if attr.Type == schema.TypePerson {
		return r.person(raw, ev, attr.Name)
	}

	v, err := r.adapter.Coerce(r.ctx, attr, raw, r.resolver)
	if err == nil {
		return v, nil
	}
	if errors.Is(err, domain.ErrValueCoercion) {
		r.anomalies = append(r.anomalies, Anomaly{
			Kind:      AnomalyCoercionFailure,
			Field:     ev.Field,
			Attribute: attr.Name,
			Raw:       raw,
			At:        ev.ChangedAt,
			Err:       err,
		})
		r.logger.Warn("keeping previous value after coercion failure",
			zap.String("field", ev.Field),
			zap.String("attribute", attr.Name),
			zap.String("raw", raw),
			zap.Error(err))
	}
	return v, err
}

func (r *run) author(ev domain.ChangeEvent) (domain.Value, error) {
	if ev.Author == "" {
		r.unresolved(ev, "changed_by", "")
		return domain.UnknownPerson(), nil
	}
	return r.person(ev.Author, ev, "changed_by")
}

func (r *run) person(identifier string, ev domain.ChangeEvent, attribute string) (domain.Value, error) {
	if identifier == "" {
		return domain.Null(), nil
	}

	lookup, cached := r.people[identifier]
	if !cached {
		attr := schema.Attribute{Name: attribute, Type: schema.TypePerson}
		v, err := r.adapter.Coerce(r.ctx, attr, identifier, r.resolver)
		lookup = personLookup{value: v, err: err}
		if err == nil || errors.Is(err, domain.ErrPersonNotFound) {
			r.people[identifier] = lookup
		}
	}

	switch {
	case lookup.err == nil:
		return lookup.value, nil
	case errors.Is(lookup.err, domain.ErrPersonNotFound):
		r.unresolved(ev, attribute, identifier)
		return domain.UnknownPerson(), nil
	default:
		return domain.Null(), fmt.Errorf("%w: resolve %q: %w", domain.ErrSourceUnavailable, identifier, lookup.err)
	}
}

func (r *run) unresolved(ev domain.ChangeEvent, attribute, identifier string) {
	r.anomalies = append(r.anomalies, Anomaly{
		Kind:      AnomalyUnresolvedPerson,
		Field:     ev.Field,
		Attribute: attribute,
		Raw:       identifier,
		At:        ev.ChangedAt,
	})
	r.logger.Warn("person not found, using unknown author",
		zap.String("field", ev.Field),
		zap.String("attribute", attribute),
		zap.String("identifier", identifier))
}
