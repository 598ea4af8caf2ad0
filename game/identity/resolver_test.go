package identity

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/kasuganosora/arenabot/game/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ally    = registry.CategoryPlayer | registry.CategoryAlly
	monster = registry.CategoryMonster
)

func TestScore_ExactCopyIsOne(t *testing.T) {
	assert.Equal(t, 1.0, Score("Bob_the_Goblin", "Bob the Goblin"))
	assert.Equal(t, 1.0, Score("alice", "ALICE"))
	assert.Equal(t, 1.0, Score("Alice2", "Alice"))
}

func TestScore_EmptyName(t *testing.T) {
	assert.Equal(t, 0.0, Score("bob", ""))
	assert.Equal(t, 0.0, Score("bob", "  "))
}

func TestScore_PartialAlignment(t *testing.T) {
	// b,o,b match contiguously; the rest of "bobthegoblin" finds nothing after the cursor.
	assert.InDelta(t, 6.0/24.0, Score("Bob", "Bob_the_Goblin"), 1e-9)
	// g and l continue the match, b and n are found further along.
	assert.InDelta(t, (2+1+2+1)/8.0, Score("goblin", "gbln"), 1e-9)
	assert.Equal(t, 0.0, Score("xyz", "abc"))
}

func TestScore_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	letters := []rune("abcde _")
	randStr := func() string {
		n := rng.Intn(8) + 1
		out := make([]rune, n)
		for i := range out {
			out[i] = letters[rng.Intn(len(letters))]
		}
		return string(out)
	}
	for i := 0; i < 2000; i++ {
		s, f := randStr(), randStr()
		got := Score(s, f)
		require.GreaterOrEqual(t, got, 0.0, "score(%q,%q)", s, f)
		require.LessOrEqual(t, got, 1.0, "score(%q,%q)", s, f)
	}
}

func TestMatchNames_Scenario(t *testing.T) {
	names := []Unmatched{
		{Value: "Alice", Category: ally, Seq: 1},
		{Value: "Bob_the_Goblin", Category: monster, Seq: 2},
		{Value: "Alice", Category: ally, Seq: 3},
	}
	ids := []Unmatched{
		{Value: "Alice", Category: ally},
		{Value: "Bob", Category: monster},
		{Value: "Alice2", Category: ally},
	}

	got := MatchNames(names, ids)
	require.Len(t, got, 3)

	byID := map[string]string{}
	for _, b := range got {
		byID[b.ID] = b.Name
	}
	assert.Equal(t, "Bob_the_Goblin", byID["Bob"])
	assert.Equal(t, "Alice", byID["Alice"])
	assert.Equal(t, "Alice", byID["Alice2"])
	for _, b := range got {
		if b.Name == "Alice" {
			assert.NotEqual(t, "Bob", b.ID)
		}
	}
}

func TestMatchNames_FastPathIgnoresScore(t *testing.T) {
	names := []Unmatched{{Value: "Dread Lord", Category: monster}}
	ids := []Unmatched{{Value: "xq7", Category: monster}}
	got := MatchNames(names, ids)
	require.Len(t, got, 1)
	assert.Equal(t, "xq7", got[0].ID)
	assert.Equal(t, 0.0, got[0].Score)
}

func TestMatchNames_CategoryFilter(t *testing.T) {
	names := []Unmatched{{Value: "Alice", Category: ally}}
	ids := []Unmatched{{Value: "Alice", Category: monster}}
	assert.Empty(t, MatchNames(names, ids))
}

func TestMatchNames_UnknownMatchesAnything(t *testing.T) {
	names := []Unmatched{{Value: "Mystery Guest"}}
	ids := []Unmatched{{Value: "Mystery", Category: monster}, {Value: "zz", Category: ally}}
	got := MatchNames(names, ids)
	require.Len(t, got, 1)
	assert.Equal(t, "Mystery", got[0].ID)
	assert.Equal(t, monster, got[0].Category)
}

func TestMatchNames_NeverBindsTwice(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cats := []registry.Category{registry.CategoryUnknown, ally, monster}
	for round := 0; round < 200; round++ {
		var names, ids []Unmatched
		nNames, nIDs := rng.Intn(6), rng.Intn(6)
		for i := 0; i < nNames; i++ {
			names = append(names, Unmatched{Value: fmt.Sprintf("Goblin %d", rng.Intn(3)), Category: cats[rng.Intn(3)]})
		}
		for i := 0; i < nIDs; i++ {
			ids = append(ids, Unmatched{Value: fmt.Sprintf("goblin%d", i), Category: cats[rng.Intn(3)]})
		}
		got := MatchNames(names, ids)
		seenIDs := map[string]bool{}
		for _, b := range got {
			require.False(t, seenIDs[b.ID], "id %s bound twice", b.ID)
			seenIDs[b.ID] = true
		}
		require.LessOrEqual(t, len(got), len(names))
		require.LessOrEqual(t, len(got), len(ids))
	}
}

func TestResolver_PoolLifecycle(t *testing.T) {
	r := NewResolver(nil)
	r.AddName("Alice", ally)
	r.AddName("Stray Rat", monster)
	r.AddID("alice", ally)
	r.AddID("ALICE", ally) // duplicate id ignored

	n, i := r.Pending()
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, i)

	got := r.Resolve()
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].ID)

	n, i = r.Pending()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, i)

	assert.Equal(t, []string{"Stray Rat"}, r.DropNames())
	n, _ = r.Pending()
	assert.Zero(t, n)
}

func TestResolver_DuplicateNamesBindSeparately(t *testing.T) {
	r := NewResolver(nil)
	r.AddName("Goblin", monster)
	r.AddName("Goblin", monster)
	r.AddID("Goblin", monster)
	r.AddID("Goblin2", monster)

	got := r.Resolve()
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"Goblin", "Goblin2"}, []string{got[0].ID, got[1].ID})
	n, i := r.Pending()
	assert.Zero(t, n)
	assert.Zero(t, i)
}

func TestResolver_Reset(t *testing.T) {
	r := NewResolver(nil)
	r.AddName("A", ally)
	r.AddID("b", ally)
	r.Reset()
	assert.Nil(t, r.Resolve())
}

func TestMatchNames_ZeroScoresStillBindUntilPoolEmpties(t *testing.T) {
	names := []Unmatched{{Value: "Xu", Seq: 1}, {Value: "Yv", Seq: 2}}
	ids := []Unmatched{{Value: "aa", Seq: 3}, {Value: "bb", Seq: 4}}

	got := MatchNames(names, ids)
	require.Len(t, got, 2)
	// first-seen tie-break
	assert.Equal(t, Binding{ID: "aa", Name: "Xu", NameSeq: 1, IDSeq: 3}, got[0])
	assert.Equal(t, Binding{ID: "bb", Name: "Yv", NameSeq: 2, IDSeq: 4}, got[1])
}

func TestMatchNames_StopsWhenNoEligiblePairRemains(t *testing.T) {
	names := []Unmatched{{Value: "Qq", Category: ally}, {Value: "Zz", Category: monster}}
	ids := []Unmatched{{Value: "aa", Category: ally}, {Value: "bb", Category: ally}, {Value: "cc", Category: ally}}

	got := MatchNames(names, ids)
	require.Len(t, got, 1)
	assert.Equal(t, "Qq", got[0].Name)
}

func TestResolver_RemovesTheBoundEntryBySeq(t *testing.T) {
	r := NewResolver(nil)
	r.AddName("Shade", monster)
	r.AddName("Shade", ally)
	r.AddID("Shade", ally)

	got := r.Resolve()
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].NameSeq)
	assert.Equal(t, ally, got[0].Category)

	// the monster narration is the one left waiting
	r.AddID("Shade2", monster)
	got = r.Resolve()
	require.Len(t, got, 1)
	assert.Equal(t, "Shade2", got[0].ID)
	assert.Equal(t, monster, got[0].Category)
	assert.Equal(t, 1, got[0].NameSeq)
}
