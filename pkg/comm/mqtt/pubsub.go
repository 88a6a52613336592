// Package mqtt carries monitor event packets over an MQTT broker.
package mqtt

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler receives a message. topic is relative to the queue prefix.
type Handler func(topic string, payload []byte)

// ConnectHandler is notified when the broker connection goes up or down.
type ConnectHandler func(*Queue)

// Queue is a paho client scoped under TopicPrefix. The prefix comes
// from the path of the broker URL, e.g. mqtt://broker:1883/serline
// gives "serline/".
type Queue struct {
	Client       paho.Client
	TopicPrefix  string
	QoS          byte
	OnConnect    ConnectHandler
	OnDisconnect ConnectHandler

	lock sync.RWMutex
	subs map[string][]*Subscription
}

// Subscription is one handler registered on a topic pattern.
type Subscription struct {
	Token paho.Token

	queue   *Queue
	pattern string
	handler Handler
}

// MatchTopic reports whether topic matches an MQTT filter with "+"
// and trailing "#" wildcards.
func MatchTopic(topic, pattern string) bool {
	levels, filter := strings.Split(topic, "/"), strings.Split(pattern, "/")
	for i, f := range filter {
		if f == "#" && i == len(filter)-1 {
			return true
		}
		if i >= len(levels) {
			return false
		}
		if f != "+" && f != levels[i] {
			return false
		}
	}
	return len(levels) == len(filter)
}

// ClientOptionsFromURL builds paho options from a broker URL of the form
//
//	mqtt://[user[:pass]@]host:port[/prefix][?client-id=ID&qos=N]
//
// mqtt and an empty scheme mean plain tcp, other schemes (ssl, ws, wss)
// are passed to paho as is. It returns the topic prefix and QoS too.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, byte, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", 0, err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}

	opts := paho.NewClientOptions().
		AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	query := u.Query()
	if id := query.Get("client-id"); id != "" {
		opts.SetClientID(id)
	}
	var qos byte
	if str := query.Get("qos"); str != "" {
		n, err := strconv.ParseUint(str, 10, 8)
		if err != nil || n > 2 {
			return nil, "", 0, fmt.Errorf("invalid qos %q", str)
		}
		qos = byte(n)
	}

	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return opts, prefix, qos, nil
}

// NewQueue creates a Queue. The connection handlers of options are
// replaced by the Queue's own.
func NewQueue(options *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix, subs: make(map[string][]*Subscription)}
	options.SetOnConnectHandler(q.onConnect)
	options.SetConnectionLostHandler(q.onConnectionLost)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueFromURL creates a Queue from a broker URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, prefix, qos, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	q := NewQueue(opts, prefix)
	q.QoS = qos
	return q, nil
}

// ConnectAndWait connects to the broker and waits for the result.
func (q *Queue) ConnectAndWait() error {
	token := q.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(0)
	return nil
}

// Sub registers handler on a topic pattern. The broker subscription is
// made only for the first handler of a pattern.
func (q *Queue) Sub(pattern string, handler Handler) *Subscription {
	sub := &Subscription{queue: q, pattern: pattern, handler: handler}
	q.lock.Lock()
	first := len(q.subs[pattern]) == 0
	q.subs[pattern] = append(q.subs[pattern], sub)
	q.lock.Unlock()

	if first {
		glog.V(2).Infof("mqtt: SUB %s%s", q.TopicPrefix, pattern)
		sub.Token = q.Client.Subscribe(q.TopicPrefix+pattern, q.QoS, q.dispatch)
	} else {
		sub.Token = &paho.DummyToken{}
	}
	return sub
}

// Pub publishes payload on topic, not retained.
func (q *Queue) Pub(topic string, payload []byte) paho.Token {
	return q.Client.Publish(q.TopicPrefix+topic, q.QoS, false, payload)
}

func (q *Queue) onConnect(paho.Client) {
	glog.Infof("mqtt: connected")
	filters := make(map[string]byte)
	q.lock.RLock()
	for pattern := range q.subs {
		filters[q.TopicPrefix+pattern] = q.QoS
	}
	q.lock.RUnlock()
	if len(filters) > 0 {
		glog.V(2).Infof("mqtt: resubscribe %d topics", len(filters))
		q.Client.SubscribeMultiple(filters, q.dispatch)
	}
	if q.OnConnect != nil {
		q.OnConnect(q)
	}
}

func (q *Queue) onConnectionLost(_ paho.Client, err error) {
	glog.Warningf("mqtt: connection lost: %v", err)
	if q.OnDisconnect != nil {
		q.OnDisconnect(q)
	}
}

// handlers returns the handlers whose pattern matches topic.
func (q *Queue) handlers(topic string) []Handler {
	q.lock.RLock()
	defer q.lock.RUnlock()
	var hs []Handler
	for pattern, subs := range q.subs {
		if !MatchTopic(topic, pattern) {
			continue
		}
		for _, sub := range subs {
			hs = append(hs, sub.handler)
		}
	}
	return hs
}

func (q *Queue) dispatch(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, q.TopicPrefix) {
		return
	}
	topic = topic[len(q.TopicPrefix):]
	glog.V(3).Infof("mqtt: RCV %s (%d bytes)", topic, len(msg.Payload()))
	for _, h := range q.handlers(topic) {
		h(topic, msg.Payload())
	}
}

// Close removes the handler. The broker subscription is dropped with
// the last handler of the pattern.
func (s *Subscription) Close() error {
	q := s.queue
	q.lock.Lock()
	subs := q.subs[s.pattern]
	for i, sub := range subs {
		if sub == s {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	last := len(subs) == 0
	if last {
		delete(q.subs, s.pattern)
	} else {
		q.subs[s.pattern] = subs
	}
	q.lock.Unlock()
	if !last {
		return nil
	}
	glog.V(2).Infof("mqtt: UNSUB %s%s", q.TopicPrefix, s.pattern)
	token := q.Client.Unsubscribe(q.TopicPrefix + s.pattern)
	token.Wait()
	return token.Error()
}
