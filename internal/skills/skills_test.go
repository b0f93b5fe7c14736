package skills

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-source/internal/revalidate"
	"talent-source/models"
	"talent-source/services"
)

type memStore struct {
	mu       sync.Mutex
	skills   map[string]models.Skill
	restamps []string
}

func newMemStore(skills ...models.Skill) *memStore {
	m := &memStore{skills: map[string]models.Skill{}}
	for _, s := range skills {
		m.skills[s.ID] = s
	}
	return m
}

func (m *memStore) CreateSkill(_ context.Context, skill *models.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.skills {
		if s.Slug == skill.Slug {
			return models.ErrSlugTaken
		}
	}
	m.skills[skill.ID] = *skill
	return nil
}

func (m *memStore) SaveSkill(_ context.Context, skill *models.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.skills[skill.ID]; !ok {
		return models.ErrNotFound
	}
	m.skills[skill.ID] = *skill
	return nil
}

func (m *memStore) GetSkill(_ context.Context, id string) (*models.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.skills[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) FindSkillBySlug(_ context.Context, slug string) (*models.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.skills {
		if s.Slug == slug {
			return &s, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ListSkills(_ context.Context) ([]models.Skill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Skill, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NameEn < out[j].NameEn })
	return out, nil
}

func (m *memStore) RestampBillingClass(_ context.Context, skillID string, class models.BillingClass) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restamps = append(m.restamps, skillID+":"+string(class))
	return 1, nil
}

// memIndex ranks by cosine distance like the SQLite index.
type memIndex struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	contents map[string]string
}

func newMemIndex() *memIndex {
	return &memIndex{vectors: map[string][]float32{}, contents: map[string]string{}}
}

func (m *memIndex) Upsert(_ context.Context, id, content string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[id] = embedding
	m.contents[id] = content
	return nil
}

func (m *memIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, id)
	delete(m.contents, id)
	return nil
}

func (m *memIndex) Contents(context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.contents))
	for id, content := range m.contents {
		out[id] = content
	}
	return out, nil
}

func (m *memIndex) Search(_ context.Context, query []float32, limit int, maxDistance float64) ([]services.IndexHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []services.IndexHit
	for id, vec := range m.vectors {
		if d := cosineDistance(query, vec); d <= maxDistance {
			hits = append(hits, services.IndexHit{SkillID: id, Distance: d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *memIndex) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.vectors), nil
}

func (m *memIndex) Close() error { return nil }

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// keywordEmbedder maps text onto three axes: welding, nursing, driving.
type keywordEmbedder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (k *keywordEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		k.calls = append(k.calls, in)
		if k.fail[in] {
			return nil, errors.New("embedding failed")
		}
		lower := strings.ToLower(in)
		vec := []float32{0.01, 0.01, 0.01}
		if strings.Contains(lower, "weld") {
			vec[0] = 1
		}
		if strings.Contains(lower, "nurs") {
			vec[1] = 1
		}
		if strings.Contains(lower, "driv") {
			vec[2] = 1
		}
		out = append(out, vec)
	}
	return out, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []revalidate.Change
}

func (r *recordingNotifier) Notify(_ context.Context, changes ...revalidate.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
}

func newTestService(store *memStore, embedder Embedder) (*Service, *memIndex, *recordingNotifier) {
	index := newMemIndex()
	notifier := &recordingNotifier{}
	svc := NewService(store, index, embedder, nil, services.NewMemoryCache(), notifier, Config{MaxConcurrency: 2})
	return svc, index, notifier
}

func TestCreateDerivesSlugAndIndexes(t *testing.T) {
	store := newMemStore()
	svc, index, notifier := newTestService(store, &keywordEmbedder{})

	skill, err := svc.Create(context.Background(), Input{NameEn: "Arc Welder", NameAr: "لحام", BillingClass: "c"})
	require.NoError(t, err)
	assert.Equal(t, "arc-welder", skill.Slug)
	assert.Equal(t, models.BillingClassC, skill.BillingClass)
	assert.Contains(t, index.vectors, skill.ID)
	assert.Equal(t, []revalidate.Change{{Collection: revalidate.Skills, ID: skill.ID}}, notifier.changes)

	_, err = svc.Create(context.Background(), Input{NameEn: "Arc Welder", NameAr: "لحام", BillingClass: "C"})
	assert.ErrorIs(t, err, models.ErrSlugTaken)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(newMemStore(), nil)
	tests := []struct {
		name string
		in   Input
	}{
		{"missing english name", Input{NameAr: "x", BillingClass: "A"}},
		{"missing arabic name", Input{NameEn: "Nurse", BillingClass: "A"}},
		{"unknown class", Input{NameEn: "Nurse", NameAr: "ممرض", BillingClass: "Z"}},
		{"unsluggable", Input{NameEn: "ممرض", NameAr: "ممرض", BillingClass: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidSkill)
		})
	}
}

func TestUpdateRestampsOnClassChange(t *testing.T) {
	store := newMemStore(models.Skill{ID: "s1", Slug: "nurse", NameEn: "Nurse", NameAr: "ممرض", BillingClass: models.BillingClassB})
	svc, _, _ := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, "s1", Input{NameEn: "Nurse", NameAr: "ممرضة", BillingClass: "B"})
	require.NoError(t, err)
	assert.Empty(t, store.restamps)

	skill, err := svc.Update(ctx, "s1", Input{NameEn: "Registered Nurse", NameAr: "ممرضة", BillingClass: "A"})
	require.NoError(t, err)
	assert.Equal(t, "nurse", skill.Slug)
	assert.Equal(t, []string{"s1:A"}, store.restamps)

	_, err = svc.Update(ctx, "s1", Input{Slug: "other", NameEn: "Nurse", NameAr: "ممرض", BillingClass: "A"})
	assert.ErrorIs(t, err, ErrInvalidSkill)
	_, err = svc.Update(ctx, "missing", Input{NameEn: "Nurse", NameAr: "ممرض", BillingClass: "A"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUpsertBySlug(t *testing.T) {
	store := newMemStore()
	svc, _, _ := newTestService(store, nil)
	ctx := context.Background()

	first, created, err := svc.Upsert(ctx, models.SkillSeed{NameEn: "Truck Driver", NameAr: "سائق شاحنة", Class: "C"})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Upsert(ctx, models.SkillSeed{Slug: "truck-driver", NameEn: "Heavy Truck Driver", NameAr: "سائق شاحنة", Class: "B"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Heavy Truck Driver", second.NameEn)
	assert.Len(t, store.skills, 1)
}

func TestSearchRanksByVectorDistance(t *testing.T) {
	store := newMemStore()
	embedder := &keywordEmbedder{}
	svc, _, _ := newTestService(store, embedder)
	ctx := context.Background()
	for _, in := range []Input{
		{NameEn: "Welder", NameAr: "لحام", BillingClass: "C"},
		{NameEn: "Nurse", NameAr: "ممرض", BillingClass: "A"},
		{NameEn: "Driver", NameAr: "سائق", BillingClass: "D"},
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	matches, err := svc.Search(ctx, "  Pipe   WELDING ", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Welder", matches[0].NameEn)
	assert.Greater(t, matches[0].Similarity, 0.9)

	_, err = svc.Search(ctx, "pipe welding", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(strings.Join(embedder.calls, "\n"), "pipe welding"), "query embedding is cached")
}

func TestSearchFallsBackToSubstring(t *testing.T) {
	store := newMemStore(
		models.Skill{ID: "1", Slug: "nurse", NameEn: "Nurse", NameAr: "ممرض"},
		models.Skill{ID: "2", Slug: "nurse-assistant", NameEn: "Nurse Assistant", NameAr: "مساعد ممرض"},
		models.Skill{ID: "3", Slug: "head-nurse", NameEn: "Head Nurse", NameAr: "رئيس تمريض"},
		models.Skill{ID: "4", Slug: "driver", NameEn: "Driver", NameAr: "سائق"},
	)
	svc, _, _ := newTestService(store, nil)

	matches, err := svc.Search(context.Background(), "nurse", 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "Nurse", matches[0].NameEn)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.InDelta(t, 0.75, matches[1].Similarity, 1e-9)
	assert.InDelta(t, 0.5, matches[2].Similarity, 1e-9)

	matches, err = svc.Search(context.Background(), "سائق", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "driver", matches[0].Slug)

	// a skill that cannot be embedded keeps the whole search on substrings
	svc, _, _ = newTestService(store, &keywordEmbedder{fail: map[string]bool{"Driver / سائق": true}})
	matches, err = svc.Search(context.Background(), "driver", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
}

func TestSearchFillsPartialIndexFromCatalog(t *testing.T) {
	store := newMemStore(
		models.Skill{ID: "n", Slug: "registered-nurse", NameEn: "Registered Nurse", NameAr: "ممرض مسجل", BillingClass: models.BillingClassA},
		models.Skill{ID: "d", Slug: "truck-driver", NameEn: "Truck Driver", NameAr: "سائق شاحنة", BillingClass: models.BillingClassC},
	)
	embedder := &keywordEmbedder{}
	svc, index, _ := newTestService(store, embedder)
	ctx := context.Background()

	// a fresh process indexes only the skill it edits
	_, err := svc.Create(ctx, Input{NameEn: "Arc Welder", NameAr: "لحام", BillingClass: "C"})
	require.NoError(t, err)
	require.Len(t, index.vectors, 1)

	matches, err := svc.Search(ctx, "nursing", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "Registered Nurse", matches[0].NameEn)
	assert.Len(t, index.vectors, 3)

	// renamed elsewhere: the vector is rebuilt from the new names
	store.mu.Lock()
	driver := store.skills["d"]
	driver.NameEn = "Welding Truck Driver"
	store.skills["d"] = driver
	store.mu.Unlock()
	_, err = svc.Search(ctx, "driving", 5)
	require.NoError(t, err)
	assert.Equal(t, "Welding Truck Driver / سائق شاحنة", index.contents["d"])

	// vectors of skills gone from the catalog are dropped
	require.NoError(t, index.Upsert(ctx, "ghost", "Ghost / شبح", []float32{1, 0, 0}))
	_, err = svc.Search(ctx, "welding", 5)
	require.NoError(t, err)
	assert.NotContains(t, index.vectors, "ghost")
}

func TestSearchValidation(t *testing.T) {
	svc, _, _ := newTestService(newMemStore(), nil)
	_, err := svc.Search(context.Background(), "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	assert.Equal(t, DefaultSearchLimit, clampLimit(0))
	assert.Equal(t, MaxSearchLimit, clampLimit(500))
	assert.Equal(t, 3, clampLimit(3))
}

func TestReindexCountsFailures(t *testing.T) {
	store := newMemStore(
		models.Skill{ID: "1", Slug: "welder", NameEn: "Welder", NameAr: "لحام"},
		models.Skill{ID: "2", Slug: "nurse", NameEn: "Nurse", NameAr: "ممرض"},
		models.Skill{ID: "3", Slug: "driver", NameEn: "Driver", NameAr: "سائق"},
	)
	embedder := &keywordEmbedder{fail: map[string]bool{"Nurse / ممرض": true}}
	svc, index, _ := newTestService(store, embedder)

	stats, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	snap := stats.Snapshot()
	assert.Equal(t, models.ReindexSnapshot{Total: 3, Indexed: 2, Failed: 1}, snap)
	assert.Len(t, index.vectors, 2)

	svc, _, _ = newTestService(store, nil)
	_, err = svc.Reindex(context.Background())
	assert.Error(t, err)
}

func TestSuggestRequiresClient(t *testing.T) {
	svc, _, _ := newTestService(newMemStore(), nil)
	_, err := svc.Suggest(context.Background(), "welder")
	assert.ErrorIs(t, err, ErrSuggestionsUnset)
	_, err = svc.Suggest(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidSkill)
}
