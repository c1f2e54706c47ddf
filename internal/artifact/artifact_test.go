package artifact

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/mind-classifier/pkg/errors"
)

func validDocument() *Document {
	mf := 100
	return &Document{
		Vocabulary:  map[string]int{"buy": 0, "coffee": 1, "buy coffee": 2},
		IDF:         []float64{1, 1.5, 0.1},
		NGramRange:  []int{1, 2},
		MaxFeatures: &mf,
		Coef:        [][]float64{{0.5, 0.5, 0.5}},
		Intercept:   []float64{0},
		Classes:     Labels("other", "command"),
	}
}

func validToken() *Token {
	return &Token{
		Vocabulary:   map[string]int{"bias": 0, "token=goa": 1},
		FeatureNames: []string{"bias", "token=goa"},
		Coef:         [][]float64{{0.1, 2}, {1, -1}, {0, 0}},
		Intercept:    []float64{0, 0.5, -0.5},
		Classes:      Labels("B_GROUP", "O", "I_GROUP"),
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	d := validDocument()
	d.IDF = []float64{1.0986122886681098, 0.1 + 0.2, 1e-300}
	d.StopWords = []string{"a", "the"}
	d.Norm = "l1"

	data, err := EncodeDocument(d)
	require.NoError(t, err)
	got, err := DecodeDocument(data)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	again, err := EncodeDocument(got)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestTokenRoundTrip(t *testing.T) {
	tok := validToken()
	data, err := EncodeToken(tok)
	require.NoError(t, err)
	got, err := DecodeToken(data)
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestDecodeFixtures(t *testing.T) {
	d, err := LoadDocumentFile(filepath.Join("testdata", "bin_manual.json"))
	require.NoError(t, err)
	assert.True(t, d.IsBinary())
	assert.Equal(t, []ClassLabel{IntLabel(0), IntLabel(1)}, d.Classes)
	assert.Nil(t, d.StopWords)
	require.NotNil(t, d.MaxFeatures)
	assert.Equal(t, 8000, *d.MaxFeatures)
	assert.Equal(t, 1, d.MinN())
	assert.Equal(t, 2, d.MaxN())

	tok, err := LoadTokenFile(filepath.Join("testdata", "token_manual.json"))
	require.NoError(t, err)
	assert.Equal(t, 8, tok.FeatureCount())
	assert.Equal(t, []string{"B_GROUP", "B_MERCHANT", "I_GROUP", "O"}, tok.ClassNames())
}

func TestNumericClassesEncodeAsNumbers(t *testing.T) {
	d := validDocument()
	d.Classes = []ClassLabel{IntLabel(0), IntLabel(1)}
	data, err := EncodeDocument(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"classes":[0,1]`)
	assert.Contains(t, string(data), `"stop_words":null`)
	assert.NotContains(t, string(data), "norm")
}

func TestClassLabelJSON(t *testing.T) {
	var l ClassLabel
	require.NoError(t, l.UnmarshalJSON([]byte(`"command"`)))
	assert.Equal(t, StringLabel("command"), l)

	require.NoError(t, l.UnmarshalJSON([]byte(`7`)))
	n, ok := l.Int()
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	assert.Error(t, l.UnmarshalJSON([]byte(`true`)))
	assert.Error(t, l.UnmarshalJSON([]byte(`null`)))

	_, ok = StringLabel("7").Int()
	assert.False(t, ok)
}

func TestValidateDocumentCollectsProblems(t *testing.T) {
	d := validDocument()
	d.Vocabulary = map[string]int{"buy": 0, "coffee": 0, "buy coffee": 2}
	d.IDF = []float64{1, 1}
	d.NGramRange = []int{2, 1}
	d.Intercept = []float64{0, 0}
	d.Classes = Labels("x", "x")

	err := ValidateDocument(d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArtifact))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "document", verr.Kind)
	for _, field := range []string{"vocabulary", "idf", "ngram_range", "intercept", "classes"} {
		assert.Contains(t, verr.Fields, field)
	}
}

func TestValidateDocumentCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *Document)
		field  string
	}{
		{"empty vocabulary", func(d *Document) { d.Vocabulary = nil; d.IDF = nil; d.Coef = [][]float64{{}} }, "vocabulary"},
		{"index out of range", func(d *Document) { d.Vocabulary["buy"] = 5 }, "vocabulary"},
		{"short ngram range", func(d *Document) { d.NGramRange = []int{1} }, "ngram_range"},
		{"zero min n", func(d *Document) { d.NGramRange = []int{0, 1} }, "ngram_range"},
		{"non-positive max_features", func(d *Document) { zero := 0; d.MaxFeatures = &zero }, "max_features"},
		{"nan idf", func(d *Document) { d.IDF[1] = math.NaN() }, "idf"},
		{"inf coef", func(d *Document) { d.Coef[0][0] = math.Inf(1) }, "coef"},
		{"coef columns", func(d *Document) { d.Coef[0] = d.Coef[0][:2] }, "coef"},
		{"binary needs two classes", func(d *Document) { d.Classes = Labels("a", "b", "c") }, "classes"},
		{"multiclass row count", func(d *Document) {
			d.Coef = [][]float64{{0, 0, 0}, {0, 0, 0}}
			d.Intercept = []float64{0, 0}
			d.Classes = Labels("a", "b", "c")
		}, "classes"},
		{"unknown norm", func(d *Document) { d.Norm = "max" }, "norm"},
		{"unknown multi_class", func(d *Document) { d.MultiClass = "crammer" }, "multi_class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDocument()
			tt.mutate(d)
			var verr *ValidationError
			require.ErrorAs(t, ValidateDocument(d), &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidateToken(t *testing.T) {
	require.NoError(t, ValidateToken(validToken()))

	tok := validToken()
	tok.FeatureNames = []string{"token=goa", "bias"}
	var verr *ValidationError
	require.ErrorAs(t, ValidateToken(tok), &verr)
	assert.Contains(t, verr.Fields, "feature_names")

	tok = validToken()
	tok.FeatureNames = nil
	assert.NoError(t, ValidateToken(tok))

	tok = validToken()
	tok.Coef = tok.Coef[:1]
	tok.Intercept = tok.Intercept[:1]
	require.ErrorAs(t, ValidateToken(tok), &verr)
	assert.Contains(t, verr.Fields, "classes")
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := DecodeDocument([]byte(`{"vocabulary": [1, 2]}`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArtifact)

	_, err = DecodeToken([]byte(`not json`))
	assert.ErrorIs(t, err, apperrors.ErrInvalidArtifact)

	// No partial model comes back on failure.
	d, err := DecodeDocument([]byte(`{"vocabulary": {"a": 0}, "idf": [1], "ngram_range": [1, 1], "coef": [[1]], "intercept": [0], "classes": ["only"]}`))
	assert.Nil(t, d)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArtifact)
}

func TestDetectKind(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "bin_manual.json"))
	require.NoError(t, err)
	k, err := DetectKind(data)
	require.NoError(t, err)
	assert.Equal(t, KindDocument, k)

	data, err = os.ReadFile(filepath.Join("testdata", "token_manual.json"))
	require.NoError(t, err)
	k, err = DetectKind(data)
	require.NoError(t, err)
	assert.Equal(t, KindToken, k)
}

func TestDocumentWithoutIDFIsNotAToken(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "bin_manual.json"))
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	delete(fields, "idf")
	noIDF, err := json.Marshal(fields)
	require.NoError(t, err)

	k, err := DetectKind(noIDF)
	require.NoError(t, err)
	assert.Equal(t, KindDocument, k)
	_, err = DecodeDocument(noIDF)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArtifact)

	_, err = DecodeToken(noIDF)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArtifact)
	assert.ErrorContains(t, err, "document field")

	k, err = DetectKind([]byte(`{"vocabulary":{"bias":0},"coef":[[1]],"intercept":[0],"classes":["O","B_GROUP"],"ngram_range":null}`))
	require.NoError(t, err)
	assert.Equal(t, KindDocument, k)
}

func TestWriteFileAndClone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	d := validDocument()
	require.NoError(t, WriteFile(path, d))

	got, err := LoadDocumentFile(path)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	c := got.Clone()
	c.Coef[0][0] = 99
	c.Vocabulary["new"] = 3
	assert.Equal(t, 0.5, got.Coef[0][0])
	assert.NotContains(t, got.Vocabulary, "new")

	assert.Error(t, WriteFile(path, "nope"))
}

func TestResolveClassNames(t *testing.T) {
	names, err := ResolveClassNames([]ClassLabel{IntLabel(1), IntLabel(0)}, []string{"add_expense", "settle_up"})
	require.NoError(t, err)
	assert.Equal(t, []string{"settle_up", "add_expense"}, names)

	names, err = ResolveClassNames(Labels("a", "b"), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	_, err = ResolveClassNames([]ClassLabel{IntLabel(4)}, []string{"x"})
	assert.Error(t, err)
}
