package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yvasilyev92/AddressBook/internal/address"
	"github.com/yvasilyev92/AddressBook/internal/testutil"
)

// recorder collects events delivered to one subscription.
type recorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recorder) OnChange(ev ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Address
	}
	return out
}

func newTestNotifier() *Notifier {
	return New(address.NewMatcher("contacts"), WithTokenGenerator(testutil.NewSequenceGenerator("sub")))
}

func TestSubscribe_ReturnsTokens(t *testing.T) {
	n := newTestNotifier()

	tok1, err := n.Subscribe("contacts", &recorder{})
	require.NoError(t, err)
	tok2, err := n.Subscribe("contacts/1", &recorder{})
	require.NoError(t, err)

	assert.Equal(t, "sub-1", tok1)
	assert.Equal(t, "sub-2", tok2)
	assert.Equal(t, 2, n.Len())
}

func TestSubscribe_DefaultTokensAreUUIDv7(t *testing.T) {
	n := New(address.NewMatcher("contacts"))

	tok, err := n.Subscribe("contacts", &recorder{})
	require.NoError(t, err)

	id, err := uuid.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
}

func TestSubscribe_RejectsInvalidAddress(t *testing.T) {
	n := newTestNotifier()

	_, err := n.Subscribe("contacts/abc", &recorder{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, address.ErrInvalidAddress))

	_, err = n.Subscribe("contacts", nil)
	require.Error(t, err)

	assert.Equal(t, 0, n.Len())
}

func TestPublish_ItemWriteReachesItemAndCollection(t *testing.T) {
	n := newTestNotifier()

	all, item7, item8 := &recorder{}, &recorder{}, &recorder{}
	_, err := n.Subscribe("contacts", all)
	require.NoError(t, err)
	_, err = n.Subscribe("contacts/7", item7)
	require.NoError(t, err)
	_, err = n.Subscribe("contacts/8", item8)
	require.NoError(t, err)

	ev, notified, err := n.Publish("contacts/7")
	require.NoError(t, err)

	assert.Equal(t, 2, notified)
	assert.Equal(t, "contacts/7", ev.Address)
	assert.Equal(t, int64(7), ev.Match.ID)
	assert.Equal(t, []string{"contacts/7"}, all.addresses())
	assert.Equal(t, []string{"contacts/7"}, item7.addresses())
	assert.Empty(t, item8.addresses(), "write to contacts/7 must not reach contacts/8")
}

func TestPublish_CollectionWriteSkipsItems(t *testing.T) {
	n := newTestNotifier()

	all, item := &recorder{}, &recorder{}
	_, err := n.Subscribe("contacts", all)
	require.NoError(t, err)
	_, err = n.Subscribe("contacts/1", item)
	require.NoError(t, err)

	_, notified, err := n.Publish("contacts")
	require.NoError(t, err)

	assert.Equal(t, 1, notified)
	assert.Equal(t, []string{"contacts"}, all.addresses())
	assert.Empty(t, item.addresses())
}

func TestPublish_InvalidAddress(t *testing.T) {
	n := newTestNotifier()
	all := &recorder{}
	_, err := n.Subscribe("contacts", all)
	require.NoError(t, err)

	_, _, err = n.Publish("contacts/")
	require.Error(t, err)
	assert.Empty(t, all.addresses(), "an invalid address must not be treated as the collection")
}

func TestPublish_SeqIsMonotonicPerListener(t *testing.T) {
	n := newTestNotifier()
	all := &recorder{}
	_, err := n.Subscribe("contacts", all)
	require.NoError(t, err)

	const writers = 8
	const writesEach = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < writesEach; j++ {
				_, _, err := n.Publish(address.NewMatcher("contacts").Item(int64(i)))
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	all.mu.Lock()
	defer all.mu.Unlock()
	require.Len(t, all.events, writers*writesEach)
	for i := 1; i < len(all.events); i++ {
		assert.Less(t, all.events[i-1].Seq, all.events[i].Seq, "events out of order at %d", i)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	n := newTestNotifier()
	all := &recorder{}
	tok, err := n.Subscribe("contacts", all)
	require.NoError(t, err)

	_, _, err = n.Publish("contacts")
	require.NoError(t, err)

	assert.True(t, n.Unsubscribe(tok))
	assert.False(t, n.Unsubscribe(tok), "second unsubscribe is a no-op")

	_, notified, err := n.Publish("contacts")
	require.NoError(t, err)
	assert.Equal(t, 0, notified)
	assert.Len(t, all.addresses(), 1)
}

func TestUnsubscribe_KeepsOtherSubscriptions(t *testing.T) {
	n := newTestNotifier()
	a, b, c := &recorder{}, &recorder{}, &recorder{}
	_, err := n.Subscribe("contacts", a)
	require.NoError(t, err)
	tokB, err := n.Subscribe("contacts", b)
	require.NoError(t, err)
	_, err = n.Subscribe("contacts", c)
	require.NoError(t, err)

	require.True(t, n.Unsubscribe(tokB))

	_, notified, err := n.Publish("contacts")
	require.NoError(t, err)
	assert.Equal(t, 2, notified)
	assert.Len(t, a.addresses(), 1)
	assert.Empty(t, b.addresses())
	assert.Len(t, c.addresses(), 1)
}

func TestListenerFunc(t *testing.T) {
	n := newTestNotifier()

	var got []int64
	_, err := n.Subscribe("contacts", ListenerFunc(func(ev ChangeEvent) {
		got = append(got, ev.Seq)
	}))
	require.NoError(t, err)

	n.Publish("contacts")
	n.Publish("contacts/3")

	assert.Equal(t, []int64{1, 2}, got)
}

func TestClose(t *testing.T) {
	n := newTestNotifier()
	all := &recorder{}
	_, err := n.Subscribe("contacts", all)
	require.NoError(t, err)

	n.Close()
	assert.Equal(t, 0, n.Len())

	_, err = n.Subscribe("contacts", all)
	assert.True(t, errors.Is(err, ErrClosed))

	_, notified, err := n.Publish("contacts")
	require.NoError(t, err)
	assert.Equal(t, 0, notified)
}

func TestAffects(t *testing.T) {
	coll := address.Match{Table: "contacts", Kind: address.KindCollection}
	item := func(id int64) address.Match {
		return address.Match{Table: "contacts", Kind: address.KindItem, ID: id}
	}
	other := address.Match{Table: "notes", Kind: address.KindCollection}

	assert.True(t, affects(coll, coll))
	assert.False(t, affects(coll, item(1)))
	assert.True(t, affects(item(1), coll))
	assert.True(t, affects(item(1), item(1)))
	assert.False(t, affects(item(1), item(2)))
	assert.False(t, affects(other, coll))
	assert.False(t, affects(coll, address.Match{Table: "contacts"}))
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Last())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Last())
}
