package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func values(entities []Entity) []string {
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Value)
	}
	return out
}

func TestExtract_EmptyInput(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("   \n\t  "))
}

func TestExtract_MultiWordEntityAndName(t *testing.T) {
	entities := Extract("The Project Alpha team met Alice.")

	vals := values(entities)
	assert.Contains(t, vals, "Project Alpha")
	assert.Contains(t, vals, "Alice")
	// "The" is a stopword and "team"/"met" are lowercase
	assert.NotContains(t, vals, "The")
	assert.NotContains(t, vals, "team")
}

func TestExtract_SentenceInitialWordExcluded(t *testing.T) {
	// "Yesterday" opens the sentence and is not part of a multi-word run
	entities := Extract("Yesterday we talked about Paris.")

	vals := values(entities)
	assert.NotContains(t, vals, "Yesterday")
	assert.Contains(t, vals, "Paris")
}

func TestExtract_SentenceInitialRunIncluded(t *testing.T) {
	// A multi-word run at sentence start is a proper noun, keep it
	entities := Extract("New York is huge.")

	assert.Contains(t, values(entities), "New York")
}

func TestExtract_Email(t *testing.T) {
	entities := Extract("Contact Alice at alice@example.com for details.")

	var emails []Entity
	for _, e := range entities {
		if e.Type == TypeEmail {
			emails = append(emails, e)
		}
	}
	assert.Len(t, emails, 1)
	assert.Equal(t, "alice@example.com", emails[0].Value)
	// Emails come before generic entities
	assert.Equal(t, TypeEmail, entities[0].Type)
}

func TestExtract_URL(t *testing.T) {
	entities := Extract("See https://example.com/docs, it covers everything.")

	var urls []string
	for _, e := range entities {
		if e.Type == TypeURL {
			urls = append(urls, e.Value)
		}
	}
	assert.Equal(t, []string{"https://example.com/docs"}, urls)
}

func TestExtract_DeduplicatesPreservingFirstOccurrence(t *testing.T) {
	entities := Extract("We discussed Kubernetes today. Later, Kubernetes came up again with Alice.")

	count := 0
	for _, e := range entities {
		if e.Value == "Kubernetes" {
			count++
		}
	}
	assert.Equal(t, 1, count)

	vals := values(entities)
	assert.Contains(t, vals, "Alice")
	assert.Less(t, indexOf(vals, "Kubernetes"), indexOf(vals, "Alice"))
}

func TestExtract_StripsPunctuation(t *testing.T) {
	entities := Extract("I met Bob, then (Carol) arrived.")

	vals := values(entities)
	assert.Contains(t, vals, "Bob")
	assert.Contains(t, vals, "Carol")
}

func TestExtract_StopwordsNeverEntities(t *testing.T) {
	entities := Extract("This is about What we know and How it works.")

	for _, e := range entities {
		assert.NotContains(t, []string{"This", "What", "How"}, e.Value)
	}
}

func indexOf(vals []string, target string) int {
	for i, v := range vals {
		if v == target {
			return i
		}
	}
	return -1
}
