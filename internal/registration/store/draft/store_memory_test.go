package draft

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brightpath/internal/registration/models"
	id "brightpath/pkg/domain"
	"brightpath/pkg/platform/sentinel"
)

func TestInMemory_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	d, err := models.NewDraft(id.DraftID(uuid.New()), id.PayerID(uuid.New()), models.Applicant{
		FirstName: "Ada", LastName: "Uwase", Age: 10, Grade: "P5", Username: "ada",
	}, "$2a$10$hash", time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, d))

	got, err := store.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Username, got.Username)
	assert.True(t, got.BelongsTo(d.PayerID))

	got.FirstName = "mutated"
	again, err := store.FindByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.FirstName, "store must hand out copies")

	assert.ErrorIs(t, store.Create(ctx, d), sentinel.ErrConflict)

	_, err = store.FindByID(ctx, id.DraftID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
