// Package mqtt connects the agent to an MQTT broker in both
// directions. Messages on the trigger topic become turns whose replies
// are published back; turn lifecycle events from the in-process bus are
// mirrored to <prefix>/turns/<state>. Daily turn and token counters are
// published as Home Assistant discovery sensors.
//
// The connection uses Eclipse Paho v2's [autopaho] package with
// automatic reconnection. On every (re-)connect the bridge publishes a
// retained "online" availability message and the discovery configs,
// then re-subscribes to the trigger topic. A will message flips the
// availability topic to "offline" on unexpected disconnects.
package mqtt
