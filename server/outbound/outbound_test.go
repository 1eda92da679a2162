package outbound

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandesh-mail/sandesh/consts"
	"github.com/sandesh-mail/sandesh/db"
	"github.com/sandesh-mail/sandesh/pkg/ratelimit"
)

type fakeStore struct {
	inserted    []*db.InsertMessageOptions
	insertErrs  []error // consumed per call; nil means success
	insertCalls int
}

func (s *fakeStore) GetOrCreateMailbox(_ context.Context, accountID int64, name string) (*db.Mailbox, error) {
	return &db.Mailbox{ID: accountID*100 + 2, AccountID: accountID, Name: name}, nil
}

func (s *fakeStore) InsertMessage(_ context.Context, opts *db.InsertMessageOptions) (int64, error) {
	s.insertCalls++
	if len(s.insertErrs) > 0 {
		err := s.insertErrs[0]
		s.insertErrs = s.insertErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	s.inserted = append(s.inserted, opts)
	return int64(len(s.inserted)), nil
}

type fakeNamespace struct {
	value string
	err   error
}

func (n *fakeNamespace) Namespace(context.Context) (string, error) {
	return n.value, n.err
}

type sentCall struct {
	from    string
	to, cc  []string
	subject string
	body    string
}

type fakeTransport struct {
	calls []sentCall
	err   error
}

func (t *fakeTransport) Send(from string, to, cc []string, subject, body string) error {
	if t.err != nil {
		return t.err
	}
	t.calls = append(t.calls, sentCall{from: from, to: to, cc: cc, subject: subject, body: body})
	return nil
}

func testAccount() *db.Account {
	return &db.Account{
		ID:          7,
		Username:    "alice",
		DisplayName: "Alice Wonder",
		Signature:   "Regards",
	}
}

func newTestSender(store *fakeStore, ns *fakeNamespace, transport *fakeTransport, options SenderOptions) *Sender {
	return NewSender(store, ns, transport, ratelimit.NewLimiter(), options)
}

func TestSendAppendsSignature(t *testing.T) {
	store := &fakeStore{}
	transport := &fakeTransport{}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, transport, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account:          testAccount(),
		To:               []string{"bob@example.com"},
		Subject:          "Hi",
		Body:             "Hello Bob",
		IncludeSignature: true,
	})
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	persisted := store.inserted[0]
	assert.True(t, strings.HasSuffix(persisted.Body, "\n\n--\nRegards"))

	// The transport must carry the same final body as the Sent copy.
	require.Len(t, transport.calls, 1)
	assert.Equal(t, persisted.Body, transport.calls[0].body)
}

func TestSendWithoutSignature(t *testing.T) {
	store := &fakeStore{}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, &fakeTransport{}, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Subject: "Hi",
		Body:    "Hello Bob",
	})
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "Hello Bob", store.inserted[0].Body)
}

func TestSendEmptySignatureNotAppended(t *testing.T) {
	store := &fakeStore{}
	account := testAccount()
	account.Signature = ""
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, &fakeTransport{}, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account:          account,
		To:               []string{"bob@example.com"},
		Body:             "Hello",
		IncludeSignature: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", store.inserted[0].Body)
}

func TestSendPersistsSentCopyReadWithIdentity(t *testing.T) {
	store := &fakeStore{}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, &fakeTransport{}, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Cc:      []string{"carol@example.com"},
		Subject: "Hi",
		Body:    "body",
	})
	require.NoError(t, err)

	require.Len(t, store.inserted, 1)
	msg := store.inserted[0]
	assert.True(t, msg.IsRead)
	assert.Equal(t, "Alice Wonder <alice@sandesh.local>", msg.Sender)
	assert.Equal(t, "Alice Wonder", msg.SenderDisplayName)
	assert.Equal(t, "alice@sandesh.local", msg.SenderEmail)
	// cc is merged into the persisted recipient set.
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, msg.Recipients)
}

func TestSendTransportGetsToAndCcSeparately(t *testing.T) {
	transport := &fakeTransport{}
	sender := newTestSender(&fakeStore{}, &fakeNamespace{value: "sandesh.local"}, transport, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Cc:      []string{"carol@example.com"},
		Body:    "body",
	})
	require.NoError(t, err)

	require.Len(t, transport.calls, 1)
	assert.Equal(t, []string{"bob@example.com"}, transport.calls[0].to)
	assert.Equal(t, []string{"carol@example.com"}, transport.calls[0].cc)
}

func TestSendPersistFailureSkipsTransport(t *testing.T) {
	store := &fakeStore{insertErrs: []error{consts.ErrDBUniqueViolation}}
	transport := &fakeTransport{}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, transport, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Body:    "body",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, consts.ErrDeliveryFailed)
	assert.Empty(t, transport.calls)
	assert.Equal(t, 1, store.insertCalls)
}

func TestSendRetriesTransientPersist(t *testing.T) {
	busy := fmt.Errorf("%w: lock timeout", consts.ErrDBBusy)
	store := &fakeStore{insertErrs: []error{busy, busy, nil}}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, &fakeTransport{}, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Body:    "body",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.insertCalls)
}

func TestSendTransportFailureKeepsSentCopy(t *testing.T) {
	store := &fakeStore{}
	transport := &fakeTransport{err: errors.New("connection refused")}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, transport, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Body:    "body",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, consts.ErrTransportUnavailable)

	// The Sent copy is not rolled back on transport failure.
	assert.Len(t, store.inserted, 1)
}

func TestSendNamespaceReadFreshEachSend(t *testing.T) {
	store := &fakeStore{}
	ns := &fakeNamespace{value: "old.example"}
	transport := &fakeTransport{}
	sender := newTestSender(store, ns, transport, SenderOptions{})

	req := &Request{Account: testAccount(), To: []string{"bob@example.com"}, Body: "b"}
	require.NoError(t, sender.Send(context.Background(), req))

	ns.value = "new.example"
	require.NoError(t, sender.Send(context.Background(), req))

	require.Len(t, store.inserted, 2)
	assert.Equal(t, "alice@old.example", store.inserted[0].SenderEmail)
	assert.Equal(t, "alice@new.example", store.inserted[1].SenderEmail)
	// The earlier record is untouched by the namespace change.
	assert.Equal(t, "Alice Wonder <alice@old.example>", store.inserted[0].Sender)
}

func TestSendRateLimited(t *testing.T) {
	store := &fakeStore{}
	sender := newTestSender(store, &fakeNamespace{value: "sandesh.local"}, &fakeTransport{}, SenderOptions{
		SendRateLimit:  2,
		SendRateWindow: time.Minute,
	})

	req := &Request{Account: testAccount(), To: []string{"bob@example.com"}, Body: "b"}
	require.NoError(t, sender.Send(context.Background(), req))
	require.NoError(t, sender.Send(context.Background(), req))

	err := sender.Send(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, consts.ErrRateLimited)
	assert.Len(t, store.inserted, 2)
}

func TestSendNamespaceFailure(t *testing.T) {
	store := &fakeStore{}
	sender := newTestSender(store, &fakeNamespace{err: errors.New("settings unavailable")}, &fakeTransport{}, SenderOptions{})

	err := sender.Send(context.Background(), &Request{
		Account: testAccount(),
		To:      []string{"bob@example.com"},
		Body:    "b",
	})
	require.Error(t, err)
	assert.Empty(t, store.inserted)
}

func TestSendValidatesRequest(t *testing.T) {
	sender := newTestSender(&fakeStore{}, &fakeNamespace{value: "x"}, &fakeTransport{}, SenderOptions{})

	assert.Error(t, sender.Send(context.Background(), &Request{To: []string{"a@b"}}))
	assert.Error(t, sender.Send(context.Background(), &Request{Account: testAccount()}))
}
