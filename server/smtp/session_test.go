package smtp

import (
	"context"
	"strings"
	"testing"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandesh-mail/sandesh/consts"
	"github.com/sandesh-mail/sandesh/db"
	"github.com/sandesh-mail/sandesh/pkg/ratelimit"
	"github.com/sandesh-mail/sandesh/server/delivery"
)

type fakeStore struct {
	accounts  map[string]*db.Account
	inserted  []*db.InsertMessageOptions
	insertErr error
}

func newFakeStore(usernames ...string) *fakeStore {
	s := &fakeStore{accounts: make(map[string]*db.Account)}
	for i, u := range usernames {
		s.accounts[u] = &db.Account{ID: int64(i + 1), Username: u}
	}
	return s
}

func (s *fakeStore) GetAccountByUsername(_ context.Context, username string) (*db.Account, error) {
	if acc, ok := s.accounts[username]; ok {
		return acc, nil
	}
	return nil, consts.ErrUserNotFound
}

func (s *fakeStore) GetOrCreateMailbox(_ context.Context, accountID int64, name string) (*db.Mailbox, error) {
	return &db.Mailbox{ID: accountID*100 + 1, AccountID: accountID, Name: name}, nil
}

func (s *fakeStore) InsertMessage(_ context.Context, opts *db.InsertMessageOptions) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	s.inserted = append(s.inserted, opts)
	return int64(len(s.inserted)), nil
}

func newTestSession(store *fakeStore, options Options) *Session {
	backend := New(context.Background(), "mail.sandesh.local", ":0",
		delivery.NewRouter(store), ratelimit.NewLimiter(), options)
	return &Session{backend: backend, remoteIP: "192.0.2.10"}
}

func asSMTPError(t *testing.T, err error) *gosmtp.SMTPError {
	t.Helper()
	smtpErr, ok := err.(*gosmtp.SMTPError)
	require.True(t, ok, "expected *smtp.SMTPError, got %T: %v", err, err)
	return smtpErr
}

func TestSessionDeliversMessage(t *testing.T) {
	store := newFakeStore("alice")
	session := newTestSession(store, Options{MaxMessageSize: 200 * 1024})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Rcpt("alice@sandesh.local", nil))

	payload := "Subject: Greetings\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Hello Alice\r\n"
	require.NoError(t, session.Data(strings.NewReader(payload)))

	require.Len(t, store.inserted, 1)
	msg := store.inserted[0]
	assert.Equal(t, "Greetings", msg.Subject)
	assert.Contains(t, msg.Body, "Hello Alice")
	assert.Equal(t, "bob@example.com", msg.SenderEmail)
	assert.False(t, msg.IsRead)
}

func TestSessionDataRequiresEnvelope(t *testing.T) {
	session := newTestSession(newFakeStore("alice"), Options{})

	err := session.Data(strings.NewReader("Subject: x\r\n\r\nbody"))
	smtpErr := asSMTPError(t, err)
	assert.Equal(t, 503, smtpErr.Code)
}

func TestSessionRejectsOversizedPayload(t *testing.T) {
	store := newFakeStore("alice")
	session := newTestSession(store, Options{MaxMessageSize: 128})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Rcpt("alice@sandesh.local", nil))

	payload := "Subject: big\r\n\r\n" + strings.Repeat("x", 1024)
	err := session.Data(strings.NewReader(payload))
	smtpErr := asSMTPError(t, err)
	assert.Equal(t, 552, smtpErr.Code)
	assert.Empty(t, store.inserted)
}

func TestSessionUnknownRecipientStillAccepted(t *testing.T) {
	store := newFakeStore("alice")
	session := newTestSession(store, Options{})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Rcpt("ghost@sandesh.local", nil))
	require.NoError(t, session.Rcpt("alice@sandesh.local", nil))

	err := session.Data(strings.NewReader("Subject: x\r\n\r\nbody"))
	assert.NoError(t, err)
	assert.Len(t, store.inserted, 1)
}

func TestSessionStorageFailureBounces(t *testing.T) {
	store := newFakeStore("alice")
	store.insertErr = consts.ErrDBUniqueViolation
	session := newTestSession(store, Options{})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Rcpt("alice@sandesh.local", nil))

	err := session.Data(strings.NewReader("Subject: x\r\n\r\nbody"))
	smtpErr := asSMTPError(t, err)
	assert.Equal(t, 554, smtpErr.Code)
}

func TestSessionRecipientLimit(t *testing.T) {
	session := newTestSession(newFakeStore("alice"), Options{MaxRecipients: 2})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Rcpt("a@sandesh.local", nil))
	require.NoError(t, session.Rcpt("b@sandesh.local", nil))

	err := session.Rcpt("c@sandesh.local", nil)
	smtpErr := asSMTPError(t, err)
	assert.Equal(t, 452, smtpErr.Code)
}

func TestSessionMailRateLimit(t *testing.T) {
	session := newTestSession(newFakeStore("alice"), Options{
		MailRateLimit:  2,
		MailRateWindow: time.Minute,
	})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Mail("bob@example.com", nil))

	err := session.Mail("bob@example.com", nil)
	smtpErr := asSMTPError(t, err)
	assert.Equal(t, 451, smtpErr.Code)
}

func TestSessionResetClearsEnvelope(t *testing.T) {
	session := newTestSession(newFakeStore("alice"), Options{})

	require.NoError(t, session.Mail("bob@example.com", nil))
	require.NoError(t, session.Rcpt("alice@sandesh.local", nil))
	session.Reset()

	err := session.Data(strings.NewReader("Subject: x\r\n\r\nbody"))
	smtpErr := asSMTPError(t, err)
	assert.Equal(t, 503, smtpErr.Code)
}
