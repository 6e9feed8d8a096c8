package chat

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// drain 读空一个客户端已收到的全部事件
func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case data := <-c.send:
			var env Envelope
			if err := json.Unmarshal(data, &env); err == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

// eventsOf 按事件类型过滤
func eventsOf(envs []Envelope, event string) []Envelope {
	var out []Envelope
	for _, e := range envs {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func decodeMessage(data interface{}) Message {
	var m Message
	b, _ := json.Marshal(data)
	json.Unmarshal(b, &m)
	return m
}

func decodeNotice(data interface{}) presenceNotice {
	var n presenceNotice
	b, _ := json.Marshal(data)
	json.Unmarshal(b, &n)
	return n
}

func decodeHistory(data interface{}) []Message {
	var ms []Message
	b, _ := json.Marshal(data)
	json.Unmarshal(b, &ms)
	return ms
}

func decodeUserList(data interface{}) []string {
	var names []string
	b, _ := json.Marshal(data)
	json.Unmarshal(b, &names)
	return names
}

// newTestHub 返回不跑事件循环的Hub，测试直接调用handle*保证确定性
func newTestHub(limit int) *Hub {
	h := NewHub(limit)
	h.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return h
}

func TestHistoryEviction(t *testing.T) {
	Convey("Given a channel with a history limit of 100", t, func() {
		h := newTestHub(100)
		alice := h.NewClient("Alice")
		h.handleJoin(alice, "Alice", "general")
		drain(alice)

		Convey("When 105 messages are sent", func() {
			for i := 1; i <= 105; i++ {
				h.handleSend(alice, fmt.Sprintf("msg-%d", i))
			}

			Convey("Then exactly the last 100 remain, in original order", func() {
				ch := h.channels["general"]
				So(len(ch.history), ShouldEqual, 100)
				So(ch.history[0].Content, ShouldEqual, "msg-6")
				So(ch.history[99].Content, ShouldEqual, "msg-105")
				for i := 1; i < len(ch.history); i++ {
					So(ch.history[i].ID, ShouldBeGreaterThan, ch.history[i-1].ID)
				}
			})

			Convey("And a late joiner receives only those 100, oldest first", func() {
				bob := h.NewClient("Bob")
				h.handleJoin(bob, "Bob", "general")
				envs := drain(bob)
				hist := eventsOf(envs, EventHistory)
				So(len(hist), ShouldEqual, 1)
				msgs := decodeHistory(hist[0].Data)
				So(len(msgs), ShouldEqual, 100)
				So(msgs[0].Content, ShouldEqual, "msg-6")
				So(msgs[99].Content, ShouldEqual, "msg-105")
			})
		})
	})
}

func TestChannelIsolation(t *testing.T) {
	Convey("Given members in two different channels", t, func() {
		h := newTestHub(0)
		alice := h.NewClient("Alice")
		bob := h.NewClient("Bob")
		h.handleJoin(alice, "Alice", "general")
		h.handleJoin(bob, "Bob", "ops")
		drain(alice)
		drain(bob)

		Convey("When a message is sent to general", func() {
			h.handleSend(alice, "secret plans")

			Convey("Then the ops member never receives it", func() {
				So(eventsOf(drain(bob), EventNewMsg), ShouldBeEmpty)
			})

			Convey("And it does not appear in ops history", func() {
				So(h.channels["ops"].history, ShouldBeEmpty)
				So(len(h.channels["general"].history), ShouldEqual, 1)
			})
		})
	})
}

func TestPresenceOnSwitch(t *testing.T) {
	Convey("Given Alice and Bob in general", t, func() {
		h := newTestHub(0)
		alice := h.NewClient("Alice")
		bob := h.NewClient("Bob")
		h.handleJoin(alice, "Alice", "general")
		h.handleJoin(bob, "Bob", "general")
		drain(alice)
		drain(bob)

		Convey("When Alice switches to ops", func() {
			h.handleSwitch(alice, "ops")

			Convey("Then Alice leaves general's presence and enters ops'", func() {
				So(h.channels["general"].members[alice], ShouldBeFalse)
				So(h.channels["ops"].members[alice], ShouldBeTrue)
				So(alice.channel, ShouldEqual, "ops")
			})

			Convey("And Bob receives exactly one user:left for Alice", func() {
				envs := drain(bob)
				left := eventsOf(envs, EventUserLeave)
				So(len(left), ShouldEqual, 1)
				So(decodeNotice(left[0].Data).Username, ShouldEqual, "Alice")

				lists := eventsOf(envs, EventUserList)
				So(len(lists), ShouldEqual, 1)
				So(decodeUserList(lists[0].Data), ShouldResemble, []string{"Bob"})
			})

			Convey("And Alice receives ops history plus the ops user list", func() {
				envs := drain(alice)
				So(len(eventsOf(envs, EventHistory)), ShouldEqual, 1)
				lists := eventsOf(envs, EventUserList)
				So(len(lists), ShouldEqual, 1)
				So(decodeUserList(lists[0].Data), ShouldResemble, []string{"Alice"})
			})
		})

		Convey("When Alice switches to the channel she is already in", func() {
			h.handleSwitch(alice, "general")

			Convey("Then nothing is re-sent", func() {
				So(drain(alice), ShouldBeEmpty)
				So(drain(bob), ShouldBeEmpty)
			})
		})

		Convey("When a never-joined connection tries to switch or send", func() {
			ghost := h.NewClient("Ghost")
			h.handleSwitch(ghost, "general")
			h.handleSend(ghost, "boo")

			Convey("Then it is silently ignored", func() {
				So(drain(ghost), ShouldBeEmpty)
				So(h.channels["general"].members[ghost], ShouldBeFalse)
				So(len(h.channels["general"].history), ShouldEqual, 0)
			})
		})
	})
}

func TestEmptyContentDropped(t *testing.T) {
	Convey("Given a joined member", t, func() {
		h := newTestHub(0)
		alice := h.NewClient("Alice")
		h.handleJoin(alice, "Alice", "general")
		drain(alice)

		Convey("When whitespace-only content is sent", func() {
			h.handleSend(alice, "   \t\n ")

			Convey("Then nothing is stored or broadcast", func() {
				So(h.channels["general"].history, ShouldBeEmpty)
				So(drain(alice), ShouldBeEmpty)
			})
		})
	})
}

func TestEndToEndScenario(t *testing.T) {
	Convey("Given Alice, Bob and Carol joining general in order", t, func() {
		h := newTestHub(0)
		alice := h.NewClient("Alice")
		bob := h.NewClient("Bob")
		carol := h.NewClient("Carol")
		h.handleJoin(alice, "Alice", "general")
		h.handleJoin(bob, "Bob", "general")
		h.handleJoin(carol, "Carol", "general")
		drain(alice)
		drain(bob)
		drain(carol)

		Convey("When Bob sends hello", func() {
			h.handleSend(bob, "hello")

			Convey("Then all three receive the same message:new", func() {
				var lastID int64
				for _, c := range []*Client{alice, bob, carol} {
					envs := eventsOf(drain(c), EventNewMsg)
					So(len(envs), ShouldEqual, 1)
					msg := decodeMessage(envs[0].Data)
					So(msg.Username, ShouldEqual, "Bob")
					So(msg.Content, ShouldEqual, "hello")
					So(msg.Channel, ShouldEqual, "general")
					So(msg.ID, ShouldBeGreaterThan, 0)
					if lastID != 0 {
						So(msg.ID, ShouldEqual, lastID)
					}
					lastID = msg.ID
				}

				Convey("And ids grow monotonically within the channel", func() {
					h.handleSend(bob, "again")
					envs := eventsOf(drain(alice), EventNewMsg)
					So(len(envs), ShouldEqual, 1)
					So(decodeMessage(envs[0].Data).ID, ShouldBeGreaterThan, lastID)
				})
			})

			Convey("And when Carol disconnects", func() {
				drain(alice)
				drain(bob)
				h.handleDisconnect(carol)

				Convey("Then Alice and Bob each see exactly one user:left and a 2-name list", func() {
					for _, c := range []*Client{alice, bob} {
						envs := drain(c)
						left := eventsOf(envs, EventUserLeave)
						So(len(left), ShouldEqual, 1)
						So(decodeNotice(left[0].Data).Username, ShouldEqual, "Carol")
						lists := eventsOf(envs, EventUserList)
						So(len(lists), ShouldEqual, 1)
						So(decodeUserList(lists[0].Data), ShouldResemble, []string{"Alice", "Bob"})
					}
				})

				Convey("And Carol's connection is terminal", func() {
					So(carol.channel, ShouldEqual, "")
					So(h.channels["general"].members[carol], ShouldBeFalse)
				})
			})
		})
	})
}

func TestJoinBroadcasts(t *testing.T) {
	Convey("Given Alice alone in general", t, func() {
		h := newTestHub(0)
		alice := h.NewClient("Alice")
		h.handleJoin(alice, "Alice", "general")
		drain(alice)

		Convey("When Bob joins", func() {
			bob := h.NewClient("Bob")
			h.handleJoin(bob, "Bob", "general")

			Convey("Then Alice gets user:joined plus the new list", func() {
				envs := drain(alice)
				joined := eventsOf(envs, EventUserJoin)
				So(len(joined), ShouldEqual, 1)
				So(decodeNotice(joined[0].Data).Username, ShouldEqual, "Bob")
				lists := eventsOf(envs, EventUserList)
				So(len(lists), ShouldEqual, 1)
				So(decodeUserList(lists[0].Data), ShouldResemble, []string{"Alice", "Bob"})
			})

			Convey("Then Bob gets history and the list but no user:joined for himself", func() {
				envs := drain(bob)
				So(len(eventsOf(envs, EventHistory)), ShouldEqual, 1)
				So(len(eventsOf(envs, EventUserList)), ShouldEqual, 1)
				So(eventsOf(envs, EventUserJoin), ShouldBeEmpty)
			})
		})
	})
}

func TestHubStats(t *testing.T) {
	Convey("Given a running hub", t, func() {
		h := NewHub(0)
		go h.Run()
		defer h.Close()

		alice := h.NewClient("Alice")
		bob := h.NewClient("Bob")
		h.Join(alice, "Alice", "general")
		h.Join(bob, "Bob", "ops")

		Convey("When stats are requested", func() {
			stats := h.Stats()

			Convey("Then channel and online counts are live", func() {
				So(stats.Channels, ShouldEqual, 2)
				So(stats.Online, ShouldEqual, 2)
			})
		})
	})
}
