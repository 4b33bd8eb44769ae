package contract

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	vcrypto "github.com/voicepact/voicepact/pkg/crypto"
)

// newTestDB creates an in-memory SQLite DB with contract tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func newTestCrypto(t *testing.T) *vcrypto.Service {
	t.Helper()
	svc, err := vcrypto.NewService(&vcrypto.Config{
		MasterKey:     "test-master-key",
		Salt:          "test-salt",
		WebhookSecret: "test-webhook-secret",
	})
	require.NoError(t, err)
	return svc
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(newTestDB(t), newTestCrypto(t))
	require.NoError(t, store.AutoMigrate())
	return store
}

func maizeRequest() *CreateRequest {
	return &CreateRequest{
		Transcript: "I agree to sell 100 bags of maize at 500 shillings per bag",
		Type:       TypeAgriculturalSupply,
		Terms: map[string]any{
			"product":      "Maize",
			"quantity":     float64(100),
			"unit":         "bags",
			"unit_price":   float64(500),
			"total_amount": float64(50000),
			"currency":     "KES",
		},
		Parties: []PartyInput{
			{Phone: "+254700111222", Role: RoleSeller, Name: "Wanjiku"},
			{Phone: "+254700333444", Role: RoleBuyer, Name: "Omondi"},
		},
	}
}

func TestStore_Create(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	c := result.Contract
	assert.Regexp(t, `^AG-\d{6}-[0-9A-F]{6}$`, c.ID)
	assert.Equal(t, StatusPending, c.Status)
	assert.NotEmpty(t, c.ContractHash)
	assert.Equal(t, 50000.0, c.TotalAmount)
	assert.Equal(t, "KES", c.Currency)
	assert.Len(t, c.Parties, 2)

	// Incomplete terms warn but do not fail.
	assert.Contains(t, result.Warnings, "missing term: delivery_location")
	assert.Contains(t, result.Warnings, "missing term: delivery_deadline")

	// One pending signature per party.
	report, err := store.Status(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 0, report.Signed)
	for _, sig := range report.Signatures {
		assert.Equal(t, SignaturePending, sig.Status)
	}
}

func TestStore_Create_RejectsDuplicateContent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create(maizeRequest())
	require.NoError(t, err)

	_, err = store.Create(maizeRequest())
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "transcript", vErr.Field)
}

func TestStore_Create_RejectsFewerThanTwoParties(t *testing.T) {
	store := newTestStore(t)

	req := maizeRequest()
	req.Parties = req.Parties[:1]

	_, err := store.Create(req)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "parties", vErr.Field)
}

func TestStore_Create_RejectsUnknownRole(t *testing.T) {
	store := newTestStore(t)

	req := maizeRequest()
	req.Parties[1].Role = "broker"

	_, err := store.Create(req)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestStore_Create_SamePhoneTwoRolesSignsOnce(t *testing.T) {
	store := newTestStore(t)

	req := maizeRequest()
	req.Parties = append(req.Parties, PartyInput{Phone: "+254700111222", Role: RoleWitness})

	result, err := store.Create(req)
	require.NoError(t, err)

	report, err := store.Status(result.Contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
}

func TestStore_RecordSignature_QuorumConfirms(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	// First signer: no quorum yet.
	first, err := store.RecordSignature(id, "+254700111222", DecisionConfirm)
	require.NoError(t, err)
	assert.Equal(t, SignatureSigned, first.Status)
	assert.False(t, first.QuorumReached)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)

	// Last signer completes quorum in the same write.
	second, err := store.RecordSignature(id, "+254700333444", DecisionConfirm)
	require.NoError(t, err)
	assert.True(t, second.QuorumReached)

	rec, err = store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
	require.NotNil(t, rec.ConfirmedAt)
}

func TestStore_RecordSignature_Idempotent(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	_, err = store.RecordSignature(id, "+254700111222", DecisionConfirm)
	require.NoError(t, err)
	_, err = store.RecordSignature(id, "+254700333444", DecisionConfirm)
	require.NoError(t, err)

	// Re-confirming after quorum does not disturb the contract.
	again, err := store.RecordSignature(id, "+254700111222", DecisionConfirm)
	require.NoError(t, err)
	assert.Equal(t, SignatureSigned, again.Status)
	assert.False(t, again.QuorumReached)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
}

func TestStore_RecordSignature_RejectBlocksQuorum(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	_, err = store.RecordSignature(id, "+254700111222", DecisionConfirm)
	require.NoError(t, err)

	rejected, err := store.RecordSignature(id, "+254700333444", DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, SignatureRejected, rejected.Status)
	assert.False(t, rejected.QuorumReached)

	// A reject never cascades; the contract stays pending.
	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestStore_RecordSignature_UnknownPhoneRejected(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	_, err = store.RecordSignature(result.Contract.ID, "+254799999999", DecisionConfirm)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "phone", vErr.Field)
}

func TestStore_RecordSignature_AllowUnknownSigners(t *testing.T) {
	store := newTestStore(t)
	store.AllowUnknownSigners = true

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)

	sig, err := store.RecordSignature(result.Contract.ID, "+254799999999", DecisionConfirm)
	require.NoError(t, err)
	assert.Equal(t, SignatureSigned, sig.Status)

	// The lazily created row now counts toward quorum.
	report, err := store.Status(result.Contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
}

func TestStore_RecordSignature_UnknownContract(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RecordSignature("AG-250115-AB12CD", "+254700111222", DecisionConfirm)
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestStore_Transition_FullLifecycle(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	_, err = store.RecordSignature(id, "+254700111222", DecisionConfirm)
	require.NoError(t, err)
	_, err = store.RecordSignature(id, "+254700333444", DecisionConfirm)
	require.NoError(t, err)

	require.NoError(t, store.Transition(id, StatusActive, "operator"))
	require.NoError(t, store.Transition(id, StatusCompleted, "operator"))

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.CompletedAt)
}

func TestStore_Transition_IllegalLeavesStateUnchanged(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	err = store.Transition(id, StatusCompleted, "operator")
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "CONTRACT_INVALID_TRANSITION", tErr.Code)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
}

func TestStore_Transition_TerminalStateFrozen(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	require.NoError(t, store.Transition(id, StatusCancelled, "operator"))

	err = store.Transition(id, StatusActive, "operator")
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "CONTRACT_STATE_TERMINAL", tErr.Code)
}

func TestStore_Transition_CompletedChecksIntegrity(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	_, err = store.RecordSignature(id, "+254700111222", DecisionConfirm)
	require.NoError(t, err)
	_, err = store.RecordSignature(id, "+254700333444", DecisionConfirm)
	require.NoError(t, err)
	require.NoError(t, store.Transition(id, StatusActive, "operator"))

	// Tamper with the stored transcript behind the store's back.
	require.NoError(t, store.db.Model(&Record{}).Where("id = ?", id).
		Update("transcript", "I agree to sell 100 bags of maize at 5 shillings per bag").Error)

	err = store.Transition(id, StatusCompleted, "operator")
	var iErr *IntegrityError
	require.ErrorAs(t, err, &iErr)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, rec.Status)
}

func TestStore_VerifyIntegrity(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	require.NoError(t, store.VerifyIntegrity(id))

	require.NoError(t, store.db.Model(&Record{}).Where("id = ?", id).
		Update("transcript", "tampered").Error)

	err = store.VerifyIntegrity(id)
	var iErr *IntegrityError
	require.ErrorAs(t, err, &iErr)
}

func TestStore_ReevaluateQuorum_Recovery(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	// Simulate a crash that left all signatures signed without the
	// promotion being applied.
	require.NoError(t, store.db.Model(&SignatureRecord{}).
		Where("contract_id = ?", id).
		Updates(map[string]any{"status": SignatureSigned}).Error)

	reached, err := store.ReevaluateQuorum(id)
	require.NoError(t, err)
	assert.True(t, reached)

	// Repeated evaluation after confirmation is a no-op.
	reached, err = store.ReevaluateQuorum(id)
	require.NoError(t, err)
	assert.False(t, reached)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, rec.Status)
}

func TestStore_ActiveForPhone(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Create(maizeRequest())
	require.NoError(t, err)

	// The content hash is unique per contract, so the second one needs a
	// different transcript.
	other := maizeRequest()
	other.Transcript = "I agree to sell 200 bags of beans at 700 shillings per bag"
	second, err := store.Create(other)
	require.NoError(t, err)
	require.NoError(t, store.Transition(second.Contract.ID, StatusCancelled, "operator"))

	contracts, err := store.ActiveForPhone("+254700111222", 5)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, first.Contract.ID, contracts[0].ID)

	contracts, err = store.ActiveForPhone("+254799999999", 5)
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestStore_ExpireStale(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.db.Model(&Record{}).Where("id = ?", id).
		Update("expires_at", past).Error)

	expired, err := store.ExpireStale()
	require.NoError(t, err)
	assert.Equal(t, int64(1), expired)

	rec, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, rec.Status)
}

func TestStore_Delete_Cascades(t *testing.T) {
	store := newTestStore(t)

	result, err := store.Create(maizeRequest())
	require.NoError(t, err)
	id := result.Contract.ID

	require.NoError(t, store.Delete(id))

	_, err = store.Get(id)
	var nfErr *NotFoundError
	require.ErrorAs(t, err, &nfErr)

	var sigCount int64
	require.NoError(t, store.db.Model(&SignatureRecord{}).
		Where("contract_id = ?", id).Count(&sigCount).Error)
	assert.Zero(t, sigCount)
}

func TestStore_List_FilterByStatusAndPhone(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Create(maizeRequest())
	require.NoError(t, err)

	other := maizeRequest()
	other.Transcript = "I agree to supply 50 crates of tomatoes"
	other.Parties = []PartyInput{
		{Phone: "+254711000001", Role: RoleSeller},
		{Phone: "+254711000002", Role: RoleBuyer},
	}
	_, err = store.Create(other)
	require.NoError(t, err)

	byPhone, err := store.List(ListFilter{Phone: "+254700111222"})
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, first.Contract.ID, byPhone[0].ID)

	pending, err := store.List(ListFilter{Status: StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
