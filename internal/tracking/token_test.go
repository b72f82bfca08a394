package tracking

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealerRoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)

	token, ref, err := sealer.Issue(7, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, ref)

	claim, err := sealer.Open(token)
	require.NoError(t, err)
	require.Equal(t, int64(7), claim.RollID)
	require.Equal(t, int64(42), claim.JobOrderID)
	require.Equal(t, ref, claim.Ref)
}

func TestSealerRejectsWrongKeySize(t *testing.T) {
	_, err := NewSealer([]byte("short"), 0)
	require.ErrorIs(t, err, ErrKeySize)
}

func TestSealerRejectsTamperedToken(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)

	token, _, err := sealer.Issue(7, 42)
	require.NoError(t, err)

	tampered := []byte(token)
	tampered[len(tampered)-1] ^= 'x'
	_, err = sealer.Open(string(tampered))
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = sealer.Open("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSealerRejectsForeignKey(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)
	other, err := NewSealer(bytes.Repeat([]byte{0x99}, 32), 0)
	require.NoError(t, err)

	token, _, err := other.Issue(7, 42)
	require.NoError(t, err)
	_, err = sealer.Open(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestSealerExpiry(t *testing.T) {
	sealer, err := NewSealer(testKey(), time.Hour)
	require.NoError(t, err)
	issued := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sealer.WithNow(func() time.Time { return issued })

	token, _, err := sealer.Issue(7, 42)
	require.NoError(t, err)

	_, err = sealer.Open(token)
	require.NoError(t, err)

	sealer.WithNow(func() time.Time { return issued.Add(2 * time.Hour) })
	_, err = sealer.Open(token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

type stubRolls struct {
	refs map[int64]string
}

func (s stubRolls) QRRefForRoll(_ context.Context, rollID int64) (string, error) {
	ref, ok := s.refs[rollID]
	if !ok {
		return "", ErrRollNotFound
	}
	return ref, nil
}

type memScans struct {
	events []ScanEvent
}

func (m *memScans) InsertScan(_ context.Context, event ScanEvent) (int64, error) {
	event.ID = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return event.ID, nil
}

func (m *memScans) ListScans(_ context.Context, rollID int64) ([]ScanEvent, error) {
	out := []ScanEvent{}
	for _, event := range m.events {
		if event.RollID == rollID {
			out = append(out, event)
		}
	}
	return out, nil
}

func TestVerifyScanMatchesStoredRef(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)

	rolls := stubRolls{refs: map[int64]string{}}
	scans := &memScans{}
	svc := NewService(sealer, rolls, scans, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) })

	token, ref, err := svc.IssueToken(7, 42)
	require.NoError(t, err)
	rolls.refs[7] = ref

	event, err := svc.VerifyScan(context.Background(), token, "printing", 11)
	require.NoError(t, err)
	require.Equal(t, int64(7), event.RollID)
	require.Equal(t, "printing", event.Station)
	require.Len(t, scans.events, 1)
}

func TestVerifyScanRejectsStaleRef(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)

	rolls := stubRolls{refs: map[int64]string{}}
	svc := NewService(sealer, rolls, &memScans{}, nil, nil)

	// Roll was relabelled: stored ref differs from the token's.
	token, _, err := svc.IssueToken(7, 42)
	require.NoError(t, err)
	rolls.refs[7] = "different-ref"

	_, err = svc.VerifyScan(context.Background(), token, "cutting", 1)
	require.ErrorIs(t, err, ErrRefMismatch)
}

type memLabels struct {
	orders map[int64]int64
	refs   map[int64]string
}

func (m *memLabels) RollOrder(_ context.Context, rollID int64) (int64, error) {
	orderID, ok := m.orders[rollID]
	if !ok {
		return 0, ErrRollNotFound
	}
	return orderID, nil
}

func (m *memLabels) SetRollRef(_ context.Context, rollID int64, ref string) error {
	m.refs[rollID] = ref
	return nil
}

func TestIssueLabelReplacesStoredRef(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)

	labels := &memLabels{orders: map[int64]int64{7: 42}, refs: map[int64]string{}}
	rolls := stubRolls{refs: labels.refs}
	svc := NewService(sealer, rolls, &memScans{}, labels, nil)

	first, err := svc.IssueLabel(context.Background(), 7, 1)
	require.NoError(t, err)
	require.Equal(t, int64(42), first.JobOrderID)

	second, err := svc.IssueLabel(context.Background(), 7, 1)
	require.NoError(t, err)

	// Only the latest label verifies.
	_, err = svc.VerifyScan(context.Background(), first.Token, "printing", 1)
	require.ErrorIs(t, err, ErrRefMismatch)
	_, err = svc.VerifyScan(context.Background(), second.Token, "printing", 1)
	require.NoError(t, err)
}

func TestIssueLabelUnknownRoll(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)
	labels := &memLabels{orders: map[int64]int64{}, refs: map[int64]string{}}
	svc := NewService(sealer, stubRolls{refs: labels.refs}, &memScans{}, labels, nil)

	_, err = svc.IssueLabel(context.Background(), 99, 1)
	require.ErrorIs(t, err, ErrRollNotFound)
}

func TestVerifyScanUnknownRoll(t *testing.T) {
	sealer, err := NewSealer(testKey(), 0)
	require.NoError(t, err)
	svc := NewService(sealer, stubRolls{refs: map[int64]string{}}, &memScans{}, nil, nil)

	token, _, err := svc.IssueToken(7, 42)
	require.NoError(t, err)
	_, err = svc.VerifyScan(context.Background(), token, "receiving", 1)
	require.ErrorIs(t, err, ErrRollNotFound)
}
