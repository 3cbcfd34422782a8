package recommendations

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedivid/recoserver/internal/models"
)

func candidateWithAuthor(id int64, instance string, channelID int64) Candidate {
	return Candidate{
		Key: models.VideoKey{VideoID: id, InstanceDomain: instance},
		Video: &models.Video{
			VideoID:        id,
			InstanceDomain: instance,
			ChannelID:      channelID,
		},
	}
}

func TestDiversifyAuthorCap(t *testing.T) {
	in := []Candidate{
		candidateWithAuthor(1, "a.example", 7),
		candidateWithAuthor(2, "a.example", 7),
		candidateWithAuthor(3, "a.example", 7),
		candidateWithAuthor(4, "a.example", 8),
	}

	out := Diversify(in, 10, 2, 0, nil)
	assert.Len(t, out, 3)

	counts := make(map[string]int)
	for _, item := range out {
		counts[item.Video.AuthorKey()]++
	}
	for author, n := range counts {
		assert.LessOrEqual(t, n, 2, "author %s over cap", author)
	}
}

func TestDiversifyInstanceCap(t *testing.T) {
	in := []Candidate{
		candidateWithAuthor(1, "a.example", 1),
		candidateWithAuthor(2, "a.example", 2),
		candidateWithAuthor(3, "a.example", 3),
		candidateWithAuthor(4, "b.example", 4),
	}

	out := Diversify(in, 10, 0, 2, nil)
	assert.Len(t, out, 3)

	instances := make(map[string]int)
	for _, item := range out {
		instances[item.Key.Normalized().InstanceDomain]++
	}
	assert.Equal(t, 2, instances["a.example"])
	assert.Equal(t, 1, instances["b.example"])
}

func TestDiversifyRespectsLimit(t *testing.T) {
	var in []Candidate
	for i := int64(1); i <= 20; i++ {
		in = append(in, candidateWithAuthor(i, "a.example", i))
	}

	out := Diversify(in, 5, 0, 0, nil)
	assert.Len(t, out, 5)
	// order preserved
	for i := range out {
		assert.Equal(t, in[i].Key, out[i].Key)
	}
}

func TestDiversifyDropsDuplicates(t *testing.T) {
	in := []Candidate{
		candidateWithAuthor(1, "a.example", 1),
		candidateWithAuthor(1, "A.Example", 1),
		candidateWithAuthor(2, "a.example", 2),
	}

	out := Diversify(in, 10, 0, 0, nil)
	assert.Len(t, out, 2)
}

func TestDiversifyMissingMetadataSkipsAuthorCap(t *testing.T) {
	in := []Candidate{
		{Key: models.VideoKey{VideoID: 1, InstanceDomain: "a.example"}},
		{Key: models.VideoKey{VideoID: 2, InstanceDomain: "a.example"}},
		{Key: models.VideoKey{VideoID: 3, InstanceDomain: "a.example"}},
	}

	// author cap cannot apply without metadata; everything passes
	out := Diversify(in, 10, 1, 0, nil)
	assert.Len(t, out, 3)
}

func TestDiversifyStateComposesAcrossBatches(t *testing.T) {
	state := NewDiversifyState()

	first := Diversify([]Candidate{
		candidateWithAuthor(1, "a.example", 7),
		candidateWithAuthor(2, "a.example", 7),
	}, 10, 2, 0, state)
	assert.Len(t, first, 2)

	// same author's cap already spent, same identity already seen
	second := Diversify([]Candidate{
		candidateWithAuthor(1, "a.example", 7),
		candidateWithAuthor(3, "a.example", 7),
		candidateWithAuthor(4, "a.example", 9),
	}, 10, 2, 0, state)
	assert.Len(t, second, 1)
	assert.EqualValues(t, 4, second[0].Key.VideoID)
}
