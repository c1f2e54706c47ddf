package textfeat

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoffeeFeaturizer(t testing.TB) *Featurizer {
	t.Helper()
	f, err := New(Config{
		Vocabulary: map[string]int{"buy": 0, "coffee": 1, "buy coffee": 2},
		IDF:        []float64{1, 1, 1},
		MinN:       1,
		MaxN:       2,
	})
	require.NoError(t, err)
	return f
}

func TestTransformUnitVector(t *testing.T) {
	f := newCoffeeFeaturizer(t)
	vec := f.Transform("buy coffee")

	require.Equal(t, []int{0, 1, 2}, vec.Indices)
	want := 1 / math.Sqrt(3)
	for _, v := range vec.Values {
		assert.InDelta(t, want, v, 1e-12)
	}
	assert.InDelta(t, 1.0, vec.L2Norm(), 1e-12)
}

func TestTransformEmptyAndUnknownText(t *testing.T) {
	f := newCoffeeFeaturizer(t)
	for _, text := range []string{"", "   ", "tea please", "!!"} {
		vec := f.Transform(text)
		assert.True(t, vec.IsZero(), text)
		assert.Equal(t, 0, vec.Nnz(), text)
		assert.Equal(t, 3, vec.Dim)
	}
}

func TestTransformIgnoresUnknownTokens(t *testing.T) {
	f := newCoffeeFeaturizer(t)
	base := f.Transform("buy coffee")
	noisy := f.Transform("zzz buy qqq")

	// "buy" survives, but the bigram no longer forms.
	assert.Equal(t, []int{0}, noisy.Indices)
	assert.Equal(t, []float64{1}, noisy.Values)

	assert.Equal(t, base, f.Transform("BUY  coffee"))
}

func TestTransformRepeatedTerms(t *testing.T) {
	f, err := New(Config{
		Vocabulary: map[string]int{"pay": 0, "rent": 1},
		IDF:        []float64{2, 1},
		MinN:       1,
		MaxN:       1,
	})
	require.NoError(t, err)

	vec := f.Transform("pay pay rent")
	// tf*idf = [4, 1], l2 = sqrt(17)
	assert.InDelta(t, 4/math.Sqrt(17), vec.Get(0), 1e-12)
	assert.InDelta(t, 1/math.Sqrt(17), vec.Get(1), 1e-12)
}

func TestTransformOptions(t *testing.T) {
	vocab := map[string]int{"pay": 0, "rent": 1}
	idf := []float64{1, 1}

	sub, err := New(Config{Vocabulary: vocab, IDF: idf, MinN: 1, MaxN: 1, SublinearTF: true, Norm: NormNone})
	require.NoError(t, err)
	vec := sub.Transform("pay pay pay rent")
	assert.InDelta(t, 1+math.Log(3), vec.Get(0), 1e-12)
	assert.InDelta(t, 1.0, vec.Get(1), 1e-12)

	bin, err := New(Config{Vocabulary: vocab, IDF: idf, MinN: 1, MaxN: 1, Binary: true, Norm: NormL1})
	require.NoError(t, err)
	vec = bin.Transform("pay pay pay rent")
	assert.InDelta(t, 0.5, vec.Get(0), 1e-12)
	assert.InDelta(t, 0.5, vec.Get(1), 1e-12)
}

func TestTransformStopWords(t *testing.T) {
	f, err := New(Config{
		Vocabulary: map[string]int{"split bill": 0},
		IDF:        []float64{1},
		MinN:       2,
		MaxN:       2,
		StopWords:  []string{"the"},
	})
	require.NoError(t, err)
	vec := f.Transform("split the bill")
	assert.Equal(t, []float64{1}, vec.Values)
}

func TestTransformDeterministicAcrossGoroutines(t *testing.T) {
	f := newCoffeeFeaturizer(t)
	want := f.Transform("buy coffee buy")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.Equal(t, want, f.Transform("buy coffee buy"))
			}
		}()
	}
	wg.Wait()
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{Vocabulary: map[string]int{"a": 0}, IDF: []float64{1, 2}, MinN: 1, MaxN: 1})
	assert.ErrorContains(t, err, "idf length")

	_, err = New(Config{Vocabulary: map[string]int{"a": 0}, IDF: []float64{1}, MinN: 2, MaxN: 1})
	assert.ErrorContains(t, err, "ngram range")

	_, err = New(Config{Vocabulary: map[string]int{"a": 3}, IDF: []float64{1}, MinN: 1, MaxN: 1})
	assert.ErrorContains(t, err, "out of range")
}

func TestParseNorm(t *testing.T) {
	for in, want := range map[string]Norm{"": NormL2, "l2": NormL2, "l1": NormL1, "none": NormNone} {
		got, err := ParseNorm(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseNorm("max")
	assert.Error(t, err)
}
