package upstream

import (
	"strconv"
	"testing"
	"time"
)

// keeperAt returns a keeper with a controllable clock starting at base.
func keeperAt(ttl time.Duration, base time.Time) (*SessionKeeper, *time.Time) {
	clock := base
	k := NewSessionKeeper(ttl)
	k.now = func() time.Time { return clock }
	return k, &clock
}

func TestTokenFormat(t *testing.T) {
	now := time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC)
	k, _ := keeperAt(25*time.Minute, now)

	token := k.Ensure()
	if len(token) != tokenPrefixLen+len(strconv.FormatInt(now.UnixMilli(), 10)) {
		t.Fatalf("token %q has unexpected length", token)
	}

	for i := 0; i < tokenPrefixLen; i++ {
		c := token[i]
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')) {
			t.Errorf("token prefix byte %d = %q, expected an ASCII letter", i, c)
		}
	}

	suffix := token[tokenPrefixLen:]
	millis, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		t.Fatalf("token suffix %q is not numeric: %v", suffix, err)
	}
	if millis != now.UnixMilli() {
		t.Errorf("token timestamp = %d, expected %d", millis, now.UnixMilli())
	}
}

func TestEnsureReusesLiveToken(t *testing.T) {
	k, clock := keeperAt(25*time.Minute, time.Now())

	first := k.Ensure()
	*clock = clock.Add(10 * time.Minute)
	second := k.Ensure()
	if first != second {
		t.Errorf("token rotated inside the validity window: %q vs %q", first, second)
	}
}

func TestEnsureRotatesExpiredToken(t *testing.T) {
	k, clock := keeperAt(25*time.Minute, time.Now())

	first := k.Ensure()
	*clock = clock.Add(25 * time.Minute)
	second := k.Ensure()
	if first == second {
		t.Error("expired token was reused")
	}
}

func TestActivityExtendsWindow(t *testing.T) {
	k, clock := keeperAt(25*time.Minute, time.Now())

	first := k.Ensure()
	// Touch the session every 20 minutes; it should stay alive well past
	// the bare TTL measured from creation.
	for i := 0; i < 4; i++ {
		*clock = clock.Add(20 * time.Minute)
		k.NotifyActivity()
	}
	if got := k.Ensure(); got != first {
		t.Error("active session rotated")
	}
}

func TestActivityNeverRevivesExpiredSession(t *testing.T) {
	k, clock := keeperAt(25*time.Minute, time.Now())

	first := k.Ensure()
	*clock = clock.Add(30 * time.Minute)
	// Too late: the window already closed, so this must not extend it.
	k.NotifyActivity()
	if got := k.Ensure(); got == first {
		t.Error("expired session was revived by late activity")
	}
}

func TestInvalidateForcesRotation(t *testing.T) {
	k, clock := keeperAt(25*time.Minute, time.Now())

	first := k.Ensure()
	k.Invalidate()
	*clock = clock.Add(time.Millisecond)
	second := k.Ensure()
	if first == second {
		t.Error("invalidated token was reused")
	}
}

func TestConcurrentEnsureMintsOneToken(t *testing.T) {
	k := NewSessionKeeper(25 * time.Minute)

	const callers = 20
	tokens := make(chan string, callers)
	for i := 0; i < callers; i++ {
		go func() {
			tokens <- k.Ensure()
		}()
	}

	first := <-tokens
	for i := 1; i < callers; i++ {
		if token := <-tokens; token != first {
			t.Fatalf("concurrent Ensure minted distinct tokens: %q vs %q", first, token)
		}
	}
}

func TestAge(t *testing.T) {
	k, clock := keeperAt(25*time.Minute, time.Now())

	if k.Age() != 0 {
		t.Errorf("age without a session = %v, expected 0", k.Age())
	}
	k.Ensure()
	*clock = clock.Add(7 * time.Minute)
	if k.Age() != 7*time.Minute {
		t.Errorf("age = %v, expected 7m", k.Age())
	}
}
