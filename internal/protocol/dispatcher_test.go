package protocol

import (
	"strings"
	"testing"

	"dispense/internal/auth"
	"dispense/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	s := NewSession(1, "", false)
	r := h.send(s, "FROB now")
	assert.Equal(t, "400 Unknown Command\n", r.String())
	assert.Equal(t, StatusBadArgument, r.Status)
	assert.Equal(t, "400 Unknown Command\n", h.send(s, "user alice").String())
	assert.Equal(t, 2, h.metrics["unknown 400"])
}

func TestUserIssuesFreshSalt(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 0, 0)
	s := NewSession(1, "", false)

	first := h.send(s, "USER alice")
	require.Equal(t, 100, first.Code())
	assert.Equal(t, StateIdentified, s.State())
	second := h.send(s, "USER bob")
	assert.NotEqual(t, first.String(), second.String())

	staleSalt := strings.TrimPrefix(first.Lines[0].Text, "SALT ")
	stale := auth.ChallengeResponse(auth.DeriveKey("alice", h.passwords["alice"]), staleSalt)
	h.send(s, "USER alice")
	assert.Equal(t, "401 Auth Failure\n", h.send(s, "PASS "+stale).String())
	assert.Equal(t, StateIdentified, s.State())
	assert.Equal(t, -1, s.AccountID())
}

func TestUserRequiresArgument(t *testing.T) {
	h := newHarness(t)
	r := h.send(NewSession(1, "", false), "USER")
	assert.Equal(t, 407, r.Code())
}

func TestPassAuthenticates(t *testing.T) {
	h := newHarness(t)
	id := h.account("alice", 0, 0)
	s := h.login("alice")
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, id, s.AccountID())
	assert.Equal(t, "alice", s.Username())
}

func TestPassBeforeUserFails(t *testing.T) {
	h := newHarness(t)
	r := h.send(NewSession(1, "", false), "PASS 00ff")
	assert.Equal(t, "401 Auth Failure\n", r.String())
}

func TestPassUnknownUserMatchesBadPassword(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 0, 0)

	s := NewSession(1, "", false)
	h.send(s, "USER mallory")
	unknown := h.send(s, "PASS "+strings.Repeat("ab", 20))

	s = NewSession(2, "", false)
	h.send(s, "USER alice")
	wrong := h.send(s, "PASS "+strings.Repeat("ab", 20))

	assert.Equal(t, wrong.String(), unknown.String())
	assert.Equal(t, "401 Auth Failure\n", wrong.String())
}

func TestDisabledAccountCannotLogIn(t *testing.T) {
	h := newHarness(t)
	h.account("bob", 0, models.FlagDisabled)
	s := NewSession(1, "", false)
	r := h.send(s, "USER bob")
	salt := strings.TrimPrefix(r.Lines[0].Text, "SALT ")
	r = h.send(s, "PASS "+auth.ChallengeResponse(auth.DeriveKey("bob", h.passwords["bob"]), salt))
	assert.Equal(t, "403 Account disabled\n", r.String())
	assert.NotEqual(t, StateAuthenticated, s.State())
}

func TestAutoAuthRequiresTrust(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 0, 0)

	untrusted := NewSession(1, "192.0.2.10:40000", false)
	r := h.send(untrusted, "AUTOAUTH alice")
	assert.Equal(t, "401 Untrusted\n", r.String())
	assert.Equal(t, StatusForbidden, r.Status)
	assert.NotEqual(t, StateAuthenticated, untrusted.State())

	trusted := NewSession(2, "127.0.0.1:1000", true)
	assert.Equal(t, "200 Auth OK\n", h.send(trusted, "AUTOAUTH alice extra words").String())
	assert.Equal(t, StateAuthenticated, trusted.State())
	assert.Equal(t, "alice", trusted.Username())
}

func TestAutoAuthRejectsInternalAccounts(t *testing.T) {
	h := newHarness(t)
	s := NewSession(1, "127.0.0.1:1000", true)
	assert.Equal(t, "401 Auth Failure\n", h.send(s, "AUTOAUTH "+models.SalesAccountName).String())
	assert.Equal(t, 407, h.send(s, "AUTOAUTH ").Code())
	assert.NotEqual(t, StateAuthenticated, s.State())
}

func TestDispenseRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	s := NewSession(1, "", false)
	for _, line := range []string{"DISPENSE pseudo:1", "DISPENSE", "DISPENSE nonsense", "DISPENSE pseudo:99"} {
		r := h.send(s, line)
		assert.Equal(t, "401 Not Authenticated\n", r.String(), line)
		assert.Equal(t, StatusAuthRequired, r.Status)
	}
	h.send(s, "USER alice")
	assert.Equal(t, "401 Not Authenticated\n", h.send(s, "DISPENSE pseudo:1").String())
}

func TestDispenseScenario(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 500, 0)
	s := h.login("alice")

	assert.Equal(t, "200 Dispense OK\n", h.send(s, "DISPENSE pseudo:1").String())
	assert.Equal(t, int64(350), h.balance("alice"))
	assert.Equal(t, int64(150), h.balance(models.SalesAccountName))
	assert.Contains(t, h.persister.last().Reason, "pseudo:1")
}

func TestDispenseOutcomes(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 100, 0)
	s := h.login("alice")

	assert.Equal(t, "406 Bad Item ID\n", h.send(s, "DISPENSE pseudo:7").String())
	assert.Equal(t, "402 Poor You\n", h.send(s, "DISPENSE pseudo:1").String())
	assert.Equal(t, int64(100), h.balance("alice"))
	assert.Equal(t, "501 Unable to dispense\n", h.send(s, "DISPENSE door:0").String())
	assert.Equal(t, "200 Dispense OK\n", h.send(s, "DISPENSE pseudo:2").String())
	assert.Equal(t, int64(20), h.balance("alice"))
}

func TestEnumItemsAndItemInfo(t *testing.T) {
	h := newHarness(t)
	s := NewSession(1, "", false)

	r := h.send(s, "ENUM_ITEMS")
	assert.Equal(t, "201 Items 3\n202 Item pseudo:1 150 Cola\n202 Item pseudo:2 80 Chips\n202 Item door:0 0 Door\n200 List end\n", r.String())
	assert.Equal(t, StatusOKData, r.Status)

	assert.Equal(t, "202 Item pseudo:2 80 Chips\n", h.send(s, "ITEM_INFO pseudo:2").String())
	assert.Equal(t, "406 Bad Item ID\n", h.send(s, "ITEM_INFO pseudo").String())
}

func TestSetEUserChargesEffectiveAccount(t *testing.T) {
	h := newHarness(t)
	cokey := h.account("cokey", 0, models.FlagCoke)
	bob := h.account("bob", 500, 0)
	alice := h.account("alice", 500, 0)

	plain := h.login("alice")
	assert.Equal(t, "403 Not in coke\n", h.send(plain, "SETEUSER bob").String())
	assert.Equal(t, alice, plain.AccountID())

	s := h.login("cokey")
	assert.Equal(t, "404 User not found\n", h.send(s, "SETEUSER nobody").String())
	assert.Equal(t, "200 User set\n", h.send(s, "SETEUSER bob").String())
	assert.Equal(t, bob, s.EffectiveID())

	assert.Equal(t, "200 Dispense OK\n", h.send(s, "DISPENSE pseudo:1").String())
	assert.Equal(t, int64(350), h.balance("bob"))
	assert.Equal(t, int64(0), h.balance("cokey"))
	rec := h.persister.last()
	assert.Equal(t, cokey, rec.Actor)
	assert.Equal(t, bob, rec.Source)
}

func TestSetEUserRequiresAuthentication(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "401 Not Authenticated\n", h.send(NewSession(1, "", false), "SETEUSER bob").String())
}

func TestGive(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 100, 0)
	h.account("bob", 0, 0)
	s := h.login("alice")

	assert.Equal(t, "407 Invalid Argument, expected 3 parameters, 1 encountered\n", h.send(s, "GIVE bob").String())
	assert.Equal(t, "407 Invalid Argument, expected 3 parameters, 2 encountered\n", h.send(s, "GIVE bob 10").String())
	assert.Equal(t, "404 Invalid target user\n", h.send(s, "GIVE nobody 10 lunch").String())
	assert.Equal(t, 407, h.send(s, "GIVE bob -10 lunch").Code())
	assert.Equal(t, 407, h.send(s, "GIVE bob ten lunch").Code())
	assert.Equal(t, 407, h.send(s, "GIVE alice 10 to myself").Code())
	assert.Equal(t, "402 Poor You\n", h.send(s, "GIVE bob 101 too much").String())
	assert.Equal(t, "200 Give OK\n", h.send(s, "GIVE bob 60 pizza night").String())
	assert.Equal(t, int64(40), h.balance("alice"))
	assert.Equal(t, int64(60), h.balance("bob"))
	assert.Equal(t, "pizza night", h.persister.last().Reason)
}

func TestDonate(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 100, 0)
	s := h.login("alice")

	assert.Equal(t, 407, h.send(s, "DONATE 10").Code())
	assert.Equal(t, 407, h.send(s, "DONATE 0 nothing").Code())
	assert.Equal(t, "402 Poor You\n", h.send(s, "DONATE 500 generous").String())
	assert.Equal(t, "200 Donation Registered\n", h.send(s, "DONATE 25 keep it").String())
	assert.Equal(t, int64(75), h.balance("alice"))
}

func TestAddAndSetNeedCoke(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 0, 0)
	h.account("cokey", 0, models.FlagCoke)
	h.account("bob", 0, 0)

	plain := h.login("alice")
	assert.Equal(t, "403 Not in coke\n", h.send(plain, "ADD bob 100 cash").String())
	assert.Equal(t, "403 Not in coke\n", h.send(plain, "SET bob 100 cash").String())
	assert.Equal(t, "401 Not Authenticated\n", h.send(NewSession(9, "", false), "ADD bob 100 cash").String())

	s := h.login("cokey")
	assert.Equal(t, "404 Invalid user\n", h.send(s, "ADD nobody 100 cash").String())
	assert.Equal(t, 407, h.send(s, "ADD bob lots cash").Code())
	assert.Equal(t, 407, h.send(s, "ADD bob 100").Code())
	assert.Equal(t, "200 Add OK\n", h.send(s, "ADD bob 100 cash in hand").String())
	assert.Equal(t, int64(100), h.balance("bob"))
	assert.Equal(t, "402 Poor Guy\n", h.send(s, "ADD bob -101 oops").String())
	assert.Equal(t, "200 Add OK\n", h.send(s, "SET bob 42 recount").String())
	assert.Equal(t, int64(42), h.balance("bob"))
	assert.Equal(t, "402 Poor Guy\n", h.send(s, "SET bob -1 below floor").String())
	assert.Equal(t, int64(42), h.balance("bob"))
}

func TestRefundNeedsWheel(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 500, 0)
	h.account("wheelie", 0, models.FlagWheel)

	s := h.login("alice")
	require.Equal(t, "200 Dispense OK\n", h.send(s, "DISPENSE pseudo:1").String())
	assert.Equal(t, "403 Not Wheel\n", h.send(s, "REFUND alice pseudo:1").String())

	w := h.login("wheelie")
	assert.Equal(t, "404 Unknown user\n", h.send(w, "REFUND nobody pseudo:1").String())
	assert.Equal(t, "406 Bad Item ID\n", h.send(w, "REFUND alice pseudo:9").String())
	assert.Equal(t, 407, h.send(w, "REFUND alice").Code())
	assert.Equal(t, "200 Item Refunded\n", h.send(w, "REFUND alice pseudo:1").String())
	assert.Equal(t, int64(500), h.balance("alice"))
	assert.Equal(t, "200 Item Refunded\n", h.send(w, "REFUND alice pseudo:1 5").String())
	assert.Equal(t, int64(505), h.balance("alice"))
}

func TestUserInfoAndEnumUsers(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 500, 0)
	h.account("bob", 20, models.FlagCoke)
	h.account("carol", 0, models.FlagDoor)

	assert.Equal(t, "401 Not Authenticated\n", h.send(NewSession(1, "", false), "USER_INFO alice").String())
	assert.Equal(t, "401 Not Authenticated\n", h.send(NewSession(1, "", false), "ENUM_USERS").String())

	s := h.login("alice")
	assert.Equal(t, "202 User bob 20 coke\n", h.send(s, "USER_INFO bob").String())
	assert.Equal(t, "404 User not found\n", h.send(s, "USER_INFO nobody").String())

	r := h.send(s, "ENUM_USERS flags:-internal sort:name")
	assert.Equal(t, "201 Users 3\n202 User alice 500 user\n202 User bob 20 coke\n202 User carol 0 user,door\n200 List End\n", r.String())

	r = h.send(s, "ENUM_USERS flags:-internal min_balance:1 sort:balance-desc")
	assert.Equal(t, "201 Users 2\n202 User alice 500 user\n202 User bob 20 coke\n200 List End\n", r.String())

	r = h.send(s, "ENUM_USERS flags:coke")
	assert.Equal(t, "201 Users 1\n202 User bob 20 coke\n200 List End\n", r.String())

	r = h.send(s, "ENUM_USERS max_balance:0 flags:internal sort:unixid")
	assert.Equal(t, 201, r.Lines[0].Code)
	assert.Equal(t, "202 User >liability -520 internal", r.Lines[1].String())

	assert.Equal(t, "407 Unknown argument 'colour:red'\n", h.send(s, "ENUM_USERS colour:red").String())
	assert.Equal(t, 407, h.send(s, "ENUM_USERS sort:height").Code())
	assert.Equal(t, 407, h.send(s, "ENUM_USERS min_balance:lots").Code())
	assert.Equal(t, "407 Unknown argument 'flags:+'\n", h.send(s, "ENUM_USERS flags:+").String())
}

func TestUserAdd(t *testing.T) {
	h := newHarness(t)
	h.account("alice", 0, 0)
	wheel := h.account("wheelie", 0, models.FlagWheel)

	assert.Equal(t, "403 Not Wheel\n", h.send(h.login("alice"), "USER_ADD dave").String())

	s := h.login("wheelie")
	assert.Equal(t, "407 Invalid username\n", h.send(s, "USER_ADD Not Valid").String())
	assert.Equal(t, "200 User Added\n", h.send(s, "USER_ADD dave").String())
	assert.Equal(t, "404 User already exists\n", h.send(s, "USER_ADD dave").String())
	id, err := h.bank.Lookup("dave")
	require.NoError(t, err)
	assert.NotEqual(t, wheel, id)
}

func TestUserFlags(t *testing.T) {
	h := newHarness(t)
	alice := h.account("alice", 0, 0)
	h.account("wheelie", 0, models.FlagWheel)

	plain := h.login("alice")
	r := h.send(plain, "USER_FLAGS alice wheel")
	assert.Equal(t, "403 Not Wheel\n", r.String())
	assert.Equal(t, StatusForbidden, r.Status)
	flags, err := h.bank.GetFlags(alice)
	require.NoError(t, err)
	assert.Equal(t, models.Flags(0), flags)

	s := h.login("wheelie")
	assert.Equal(t, "404 User 'nobody' not found\n", h.send(s, "USER_FLAGS nobody coke").String())
	assert.Equal(t, "407 Unknown flag value 'sudo'\n", h.send(s, "USER_FLAGS alice coke,sudo").String())
	assert.Equal(t, 407, h.send(s, "USER_FLAGS alice").Code())
	assert.Equal(t, "407 Unknown flag value '-'\n", h.send(s, "USER_FLAGS alice coke,-").String())
	assert.Equal(t, "407 Unknown flag value '+'\n", h.send(s, "USER_FLAGS alice +").String())
	assert.Equal(t, "407 Unknown flag value '-'\n", h.send(s, "USER_FLAGS alice ,-,").String())
	flags, err = h.bank.GetFlags(alice)
	require.NoError(t, err)
	assert.Equal(t, models.Flags(0), flags)

	assert.Equal(t, "200 User Updated\n", h.send(s, "USER_FLAGS alice coke,+door").String())
	flags, err = h.bank.GetFlags(alice)
	require.NoError(t, err)
	assert.Equal(t, models.FlagCoke|models.FlagDoor, flags)

	assert.Equal(t, "200 User Updated\n", h.send(s, "USER_FLAGS alice user,-door,disabled").String())
	flags, err = h.bank.GetFlags(alice)
	require.NoError(t, err)
	assert.Equal(t, models.FlagDisabled, flags)
}

func TestParseFlagEdits(t *testing.T) {
	mask, value, _, ok := parseFlagEdits("+coke,-disabled,door")
	assert.True(t, ok)
	assert.Equal(t, models.FlagCoke|models.FlagDisabled|models.FlagDoor, mask)
	assert.Equal(t, models.FlagCoke|models.FlagDoor, value)

	mask, value, _, ok = parseFlagEdits("wheel,user")
	assert.True(t, ok)
	assert.Equal(t, roleBits, mask)
	assert.Equal(t, models.Flags(0), value)

	_, _, bad, ok := parseFlagEdits("coke,-root")
	assert.False(t, ok)
	assert.Equal(t, "root", bad)

	cases := []struct {
		list string
		bad  string
	}{
		{"coke,-", "-"},
		{"+", "+"},
		{",-,", "-"},
	}
	for _, tc := range cases {
		mask, value, bad, ok := parseFlagEdits(tc.list)
		assert.False(t, ok, tc.list)
		assert.Equal(t, tc.bad, bad, tc.list)
		assert.Zero(t, mask, tc.list)
		assert.Zero(t, value, tc.list)
	}
}

func TestSplitFields(t *testing.T) {
	fields, rest, ok := splitFields("bob  10   for the   pizza", 2)
	assert.True(t, ok)
	assert.Equal(t, []string{"bob", "10"}, fields)
	assert.Equal(t, "for the   pizza", rest)

	fields, _, ok = splitFields("bob", 2)
	assert.False(t, ok)
	assert.Equal(t, []string{"bob"}, fields)
}
