package composer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/mocks"
	"chat-client/internal/models"
)

const bucket = "chat-attachments"

func TestSendInsertsTrimmedText(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("InsertMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return m.ConversationID == convID && m.SenderID == selfID &&
			m.Content == "hello" && len(m.Attachments) == 0 && m.ID != uuid.Nil
	})).Return(models.Message{ID: uuid.New(), Content: "hello"}, nil)

	c := New(st, new(mocks.ObjectStoreMock), bucket, selfID, zerolog.Nop())
	stored, err := c.Send(context.Background(), convID, "  hello  ", nil)

	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)
	st.AssertExpectations(t)
}

func TestSendRejectsEmptyLocally(t *testing.T) {
	st := new(mocks.StoreMock)
	c := New(st, new(mocks.ObjectStoreMock), bucket, uuid.New(), zerolog.Nop())

	_, err := c.Send(context.Background(), uuid.New(), "   ", nil)

	assert.ErrorIs(t, err, ErrEmptyMessage)
	st.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything)
}

func TestSendUploadsAttachmentsBeforeInsert(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	objects := new(mocks.ObjectStoreMock)
	objects.On("Upload", mock.Anything, bucket,
		mock.MatchedBy(func(path string) bool {
			return strings.HasPrefix(path, convID.String()+"/") && strings.HasSuffix(path, "/photo.png")
		}),
		[]byte("img"), "image/png").Return(nil)
	objects.On("PublicURL", bucket, mock.Anything).Return("http://storage/chat-attachments/x/photo.png")

	st := new(mocks.StoreMock)
	st.On("InsertMessage", mock.Anything, mock.MatchedBy(func(m models.Message) bool {
		return len(m.Attachments) == 1 &&
			m.Attachments[0].Name == "photo.png" &&
			m.Attachments[0].URL == "http://storage/chat-attachments/x/photo.png" &&
			m.Attachments[0].Size == 3
	})).Return(models.Message{ID: uuid.New()}, nil)

	c := New(st, objects, bucket, selfID, zerolog.Nop())
	_, err := c.Send(context.Background(), convID, "", []Upload{
		{Name: "photo.png", ContentType: "image/png", Data: []byte("img")},
	})

	require.NoError(t, err)
	objects.AssertExpectations(t)
	st.AssertExpectations(t)
}

func TestSendAbortsWhenUploadFails(t *testing.T) {
	boom := errors.New("storage down")

	objects := new(mocks.ObjectStoreMock)
	objects.On("Upload", mock.Anything, bucket, mock.Anything, mock.Anything, mock.Anything).Return(boom)

	st := new(mocks.StoreMock)
	c := New(st, objects, bucket, uuid.New(), zerolog.Nop())

	_, err := c.Send(context.Background(), uuid.New(), "caption", []Upload{
		{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("pdf")},
	})

	// No message row may exist for a failed upload.
	assert.ErrorIs(t, err, boom)
	st.AssertNotCalled(t, "InsertMessage", mock.Anything, mock.Anything)
}

func TestSecondSendWhileInFlightIsRejected(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	entered := make(chan struct{})
	release := make(chan struct{})

	st := new(mocks.StoreMock)
	st.On("InsertMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(models.Message{ID: uuid.New()}, nil).Once()

	c := New(st, new(mocks.ObjectStoreMock), bucket, selfID, zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := c.Send(context.Background(), convID, "slow", nil)
		assert.NoError(t, err)
	}()

	<-entered
	_, err := c.Send(context.Background(), convID, "eager", nil)
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(release)
	wg.Wait()

	// The guard clears once the first send finishes.
	st.On("InsertMessage", mock.Anything, mock.Anything).Return(models.Message{ID: uuid.New()}, nil)
	_, err = c.Send(context.Background(), convID, "after", nil)
	assert.NoError(t, err)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "a_b.png", sanitizeName("a/b.png"))
	assert.Equal(t, "attachment", sanitizeName("   "))
	assert.Equal(t, "report.pdf", sanitizeName(" report.pdf "))
}
