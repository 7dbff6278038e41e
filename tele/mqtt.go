package tele

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/buttond/helpers"
	"github.com/temoto/buttond/log2"
	tele_config "github.com/temoto/buttond/tele/config"
)

const (
	defaultClientID = "buttond"
	publishQueue    = 64
	publishTimeout  = time.Second
)

// client is the part of mqtt.Client used here, replaced in tests.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	topic   string
	payload []byte
}

// Mqtt publishes fire-and-forget from its own goroutine.
// Messages are dropped while disconnected or when the queue is full.
type Mqtt struct {
	log     *log2.Log
	alive   *alive.Alive
	m       client
	out     chan message
	backoff helpers.Backoff
	dropped uint32

	topicPrefix  string
	topicConnect string

	// newClient is mqtt.NewClient unless test replaced it
	newClient func(*mqtt.ClientOptions) client
}

var _ Teler = &Mqtt{} // compile-time interface test

func NewMqtt() *Mqtt {
	return &Mqtt{
		newClient: func(opt *mqtt.ClientOptions) client { return mqtt.NewClient(opt) },
	}
}

func (self *Mqtt) Init(ctx context.Context, log *log2.Log, c tele_config.Config) error {
	if c.MqttBroker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}
	self.log = log
	// paho loggers are package globals
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if c.LogDebug {
		mqtt.DEBUG = log
	}

	clientID := c.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}
	self.topicPrefix = c.TopicPrefix
	if self.topicPrefix == "" {
		self.topicPrefix = clientID
	}
	self.topicConnect = self.topic(TopicConnect)
	self.backoff = helpers.Backoff{Min: time.Second, Max: time.Minute, K: 2}

	opt := mqtt.NewClientOptions().
		AddBroker(c.MqttBroker).
		SetClientID(clientID).
		SetUsername(c.MqttUsername).
		SetPassword(c.MqttPassword).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectTimeout(5*time.Second).
		SetKeepAlive(helpers.IntSecondDefault(c.KeepaliveSec, 60*time.Second)).
		SetWill(self.topicConnect, "0", 1, true).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = self.newClient(opt)
	self.out = make(chan message, publishQueue)

	self.alive = alive.NewAlive()
	self.alive.Add(2)
	go self.connectLoop(ctx)
	go self.sendLoop()
	return nil
}

func (self *Mqtt) Close() {
	if self.alive == nil {
		return
	}
	self.alive.Stop()
	self.alive.Wait()
	if self.m.IsConnected() {
		self.m.Publish(self.topicConnect, 1, true, "0").WaitTimeout(time.Second)
	}
	self.m.Disconnect(250)
	if n := atomic.LoadUint32(&self.dropped); n != 0 {
		self.log.Debugf("tele mqtt dropped %d messages", n)
	}
}

// Error must not use log.Error, that would loop through log error hook.
func (self *Mqtt) Error(err error) {
	b, merr := marshalError(err)
	if merr != nil {
		return
	}
	self.publish(TopicError, b)
}

func (self *Mqtt) Fired(f Fired) {
	b, err := f.Marshal()
	if err != nil {
		self.log.Debugf("tele marshal fired err=%v", err)
		return
	}
	self.publish(TopicFired, b)
}

func (self *Mqtt) SourceChanged(sc SourceChange) {
	b, err := sc.Marshal()
	if err != nil {
		self.log.Debugf("tele marshal source err=%v", err)
		return
	}
	self.publish(TopicSource, b)
}

func (self *Mqtt) Dropped() uint32 { return atomic.LoadUint32(&self.dropped) }

func (self *Mqtt) topic(suffix string) string { return fmt.Sprintf("%s/%s", self.topicPrefix, suffix) }

// publish never blocks the caller, nil out before Init drops too.
func (self *Mqtt) publish(suffix string, payload []byte) {
	select {
	case self.out <- message{topic: self.topic(suffix), payload: payload}:
	default:
		atomic.AddUint32(&self.dropped, 1)
	}
}

// sendLoop drains queue after stop, so Close flushes what was accepted.
func (self *Mqtt) sendLoop() {
	defer self.alive.Done()
	stopCh := self.alive.StopChan()
	for {
		select {
		case msg := <-self.out:
			self.send(msg)
		case <-stopCh:
			for {
				select {
				case msg := <-self.out:
					self.send(msg)
				default:
					return
				}
			}
		}
	}
}

func (self *Mqtt) send(msg message) {
	if !self.m.IsConnected() {
		atomic.AddUint32(&self.dropped, 1)
		return
	}
	token := self.m.Publish(msg.topic, 1, false, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		self.log.Debugf("tele mqtt publish topic=%s timeout", msg.topic)
	} else if err := token.Error(); err != nil {
		self.log.Debugf("tele mqtt publish topic=%s err=%v", msg.topic, err)
	}
}

// connectLoop retries first connection, paho auto reconnect takes over after.
func (self *Mqtt) connectLoop(ctx context.Context) {
	defer self.alive.Done()
	stopCh := self.alive.StopChan()
	for self.alive.IsRunning() {
		if delay := self.backoff.Remaining(); delay > 0 {
			select {
			case <-time.After(delay):
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
		token := self.m.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			self.backoff.Reset()
			return
		}
		self.log.Debugf("tele mqtt connect err=%v retry in %s", err, self.backoff.Failure())
	}
}

func (self *Mqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("tele mqtt connected")
	c.Publish(self.topicConnect, 1, true, "1")
}

func (self *Mqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("tele mqtt disconnected err=%v", err)
}
