package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/roach88/regeindary/internal/record"
	"github.com/roach88/regeindary/internal/store"
)

// FindRegistry returns the metadata record named name. found is false when
// there is none; more than one is an IntegrityError.
func FindRegistry(ctx context.Context, st Store, name string) (reg record.Registry, found bool, err error) {
	docs, err := st.Find(ctx, store.Registries, store.Where(store.Eq(record.FieldName, name)), store.FindOptions{})
	if err != nil {
		return record.Registry{}, false, fmt.Errorf("find registry %q: %w", name, err)
	}
	switch len(docs) {
	case 0:
		return record.Registry{}, false, nil
	case 1:
		return record.RegistryFromDocument(docs[0]), true, nil
	}
	return record.Registry{}, false, NewDuplicateRegistryError(name, len(docs))
}

// EnsureRegistry returns the metadata record of reg.Name, creating it from
// reg when absent. created reports whether it was created.
func EnsureRegistry(ctx context.Context, st Store, reg record.Registry) (out record.Registry, created bool, err error) {
	if reg.Name == "" {
		return record.Registry{}, false, NewPreconditionError("registry has no name")
	}
	existing, found, err := FindRegistry(ctx, st, reg.Name)
	if err != nil {
		return record.Registry{}, false, err
	}
	if found {
		return existing, false, nil
	}

	id, err := st.InsertOne(ctx, store.Registries, store.Document(reg.Document()))
	if err != nil {
		return record.Registry{}, false, fmt.Errorf("create registry %q: %w", reg.Name, err)
	}
	reg.ID = id
	return reg, true, nil
}

// MarkCompleted stamps the registry's last successful import.
func MarkCompleted(ctx context.Context, st Store, registryID string, at time.Time) error {
	matched, err := st.UpdateOne(ctx, store.Registries, registryID, map[string]any{
		record.FieldLastCompletedAt: at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("mark registry %s completed: %w", registryID, err)
	}
	if !matched {
		return NewPreconditionError("registry %s does not exist", registryID)
	}
	return nil
}

// DeleteRegistryRecords removes every record of registryID from collection.
// It is the explicit deletion step of a replace run.
func DeleteRegistryRecords(ctx context.Context, st Store, collection, registryID string) (int64, error) {
	if registryID == "" {
		return 0, NewPreconditionError("refusing to delete without a registry ID")
	}
	n, err := st.DeleteMany(ctx, collection, store.Where(store.Eq(record.FieldRegistryID, registryID)))
	if err != nil {
		return 0, fmt.Errorf("delete %s records of %s: %w", collection, registryID, err)
	}
	return n, nil
}

// RegistryStatus is one row of the status report.
type RegistryStatus struct {
	Registry record.Registry
	Entities int64
	Filings  int64
	// Share is the registry's fraction of all stored entities.
	Share float64
}

// StatusReport summarizes store contents per registry.
type StatusReport struct {
	Registries      []RegistryStatus
	TotalEntities   int64
	TotalFilings    int64
	UnlinkedFilings int64
}

// Status counts entities and filings per registry, ordered by registry name.
func Status(ctx context.Context, st Store) (StatusReport, error) {
	var rep StatusReport

	docs, err := st.Find(ctx, store.Registries, store.Filter{}, store.FindOptions{})
	if err != nil {
		return rep, fmt.Errorf("list registries: %w", err)
	}
	entities, err := st.CountBy(ctx, store.Organizations, record.FieldRegistryID)
	if err != nil {
		return rep, err
	}
	filings, err := st.CountBy(ctx, store.Filings, record.FieldRegistryID)
	if err != nil {
		return rep, err
	}
	rep.UnlinkedFilings, err = st.Count(ctx, store.Filings, store.Where(store.Missing(record.FieldEntityLink)))
	if err != nil {
		return rep, err
	}

	for _, n := range entities {
		rep.TotalEntities += n
	}
	for _, n := range filings {
		rep.TotalFilings += n
	}

	for _, doc := range docs {
		reg := record.RegistryFromDocument(doc)
		rs := RegistryStatus{
			Registry: reg,
			Entities: entities[reg.ID],
			Filings:  filings[reg.ID],
		}
		if rep.TotalEntities > 0 {
			rs.Share = float64(rs.Entities) / float64(rep.TotalEntities)
		}
		rep.Registries = append(rep.Registries, rs)
	}
	sort.SliceStable(rep.Registries, func(i, j int) bool {
		return rep.Registries[i].Registry.Name < rep.Registries[j].Registry.Name
	})
	return rep, nil
}

// RandomEntity picks one entity of registryID using rnd. found is false when
// the registry has no entities.
func RandomEntity(ctx context.Context, st Store, registryID string, rnd *rand.Rand) (e record.Entity, found bool, err error) {
	filter := store.Where(store.Eq(record.FieldRegistryID, registryID))
	n, err := st.Count(ctx, store.Organizations, filter)
	if err != nil {
		return record.Entity{}, false, err
	}
	if n == 0 {
		return record.Entity{}, false, nil
	}

	docs, err := st.Find(ctx, store.Organizations, filter, store.FindOptions{Limit: 1, Offset: rnd.IntN(int(n))})
	if err != nil {
		return record.Entity{}, false, err
	}
	if len(docs) == 0 {
		return record.Entity{}, false, nil
	}
	return record.EntityFromDocument(docs[0]), true, nil
}
