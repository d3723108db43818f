package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dirmem "github.com/mollebakken/artconnect/internal/directory/memory"
	"github.com/mollebakken/artconnect/internal/qrproto"
	"github.com/mollebakken/artconnect/internal/roster"
)

func TestIssue(t *testing.T) {
	t.Run("issues a decodable card", func(t *testing.T) {
		dir := dirmem.New()
		issuer := NewIssuer(dir)

		card, err := issuer.Issue(context.Background(), "42")
		require.NoError(t, err)

		payload, err := qrproto.Decode(card.QRText)
		require.NoError(t, err)
		assert.Equal(t, "42", payload.SubjectID)

		raw, err := base58.Decode(card.Token)
		require.NoError(t, err)
		assert.Len(t, raw, tokenBytes)

		rec, err := dir.ProvisioningRecord(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, card.Token, rec.Token)
	})

	t.Run("re-issue rotates the token", func(t *testing.T) {
		dir := dirmem.New()
		issuer := NewIssuer(dir)

		first, err := issuer.Issue(context.Background(), "42")
		require.NoError(t, err)

		second, err := issuer.Issue(context.Background(), "42")
		require.NoError(t, err)
		assert.NotEqual(t, first.Token, second.Token)

		rec, err := dir.ProvisioningRecord(context.Background(), "42")
		require.NoError(t, err)
		assert.Equal(t, second.Token, rec.Token)
	})

	t.Run("rejects invalid subject ids", func(t *testing.T) {
		issuer := NewIssuer(dirmem.New())

		_, err := issuer.Issue(context.Background(), "")
		require.Error(t, err)

		_, err = issuer.Issue(context.Background(), "4:2")
		require.Error(t, err)
	})

	t.Run("directory failure", func(t *testing.T) {
		dir := dirmem.New()
		dir.FailWith(errors.New("write refused"))
		issuer := NewIssuer(dir)

		_, err := issuer.Issue(context.Background(), "42")
		require.Error(t, err)
	})
}

func TestIssueRoster(t *testing.T) {
	dir := dirmem.New()
	issuer := NewIssuer(dir)

	students := []roster.Student{
		{ID: "42", Name: "Emma Jensen"},
		{ID: "43", Name: "Oliver Nielsen"},
	}

	cards, err := issuer.IssueRoster(context.Background(), students)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "42", cards[0].SubjectID)
	assert.Equal(t, "43", cards[1].SubjectID)

	for _, s := range students {
		_, err := dir.ProvisioningRecord(context.Background(), s.ID)
		require.NoError(t, err)
	}
}
