package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/skaiser/nebenkosten-billing/backend/crypto"
)

// MQTTCollector subscribes to broker topics published by networked utility
// meters (electricity, gas, water, heat) and buffers their latest cumulative
// register value in memory. The DataCollector snapshots these buffers into
// meter_readings on its collection cycle.
type MQTTCollector struct {
	db            *sql.DB
	clients       map[string]mqtt.Client // broker URL -> client
	isRunning     bool
	mu            sync.RWMutex
	readings      map[int]MQTTMeterValue // meter_id -> last value
	meterBrokers  map[int]string
	meterTopics   map[int]string
	subscriptions map[string][]string // broker URL -> subscribed topics
	stopChan      chan bool
}

// MQTTMeterValue is the latest cumulative register value seen for a meter.
type MQTTMeterValue struct {
	Value       float64 // cumulative total in the meter's native unit (kWh or m3)
	Timestamp   time.Time
	LastUpdated time.Time
	IsConnected bool
}

// GenericMeterMessage covers the field names utility meter gateways
// commonly publish.
type GenericMeterMessage struct {
	Value       *float64 `json:"value"`
	Reading     *float64 `json:"reading"`
	Total       *float64 `json:"total"`
	Energy      *float64 `json:"energy"`
	Volume      *float64 `json:"volume"`
	TotalKWh    *float64 `json:"total_kwh"`
	TotalM3     *float64 `json:"total_m3"`
	Consumption *float64 `json:"consumption"`
	Timestamp   int64    `json:"timestamp"`
}

func NewMQTTCollector(db *sql.DB) *MQTTCollector {
	return &MQTTCollector{
		db:            db,
		clients:       make(map[string]mqtt.Client),
		readings:      make(map[int]MQTTMeterValue),
		meterBrokers:  make(map[int]string),
		meterTopics:   make(map[int]string),
		subscriptions: make(map[string][]string),
		stopChan:      make(chan bool),
	}
}

func (mc *MQTTCollector) Start() {
	mc.mu.Lock()
	if mc.isRunning {
		mc.mu.Unlock()
		return
	}
	mc.isRunning = true
	mc.mu.Unlock()

	log.Println("=== MQTT Collector Starting ===")

	if err := mc.connectToAllBrokers(); err != nil {
		log.Printf("ERROR: Failed to initialize MQTT connections: %v", err)
		return
	}

	log.Println("=== MQTT Collector Started ===")

	go mc.monitorConnections()
}

func (mc *MQTTCollector) Stop() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if !mc.isRunning {
		return
	}

	log.Println("Stopping MQTT Collector...")
	mc.isRunning = false

	for brokerURL, client := range mc.clients {
		if client != nil && client.IsConnected() {
			log.Printf("Disconnecting from MQTT broker: %s", brokerURL)
			client.Disconnect(250)
		}
	}

	close(mc.stopChan)
	log.Println("MQTT Collector stopped")
}

// loadMeterConfig decrypts and parses a meter's connection_config. Configs
// written before encryption was enabled are accepted as plain JSON.
func loadMeterConfig(configJSON string) (map[string]interface{}, error) {
	raw := configJSON
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		key, err := crypto.GetEncryptionKey()
		if err != nil {
			return nil, fmt.Errorf("encryption key unavailable: %v", err)
		}
		decrypted, err := crypto.Decrypt(raw, key)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt config: %v", err)
		}
		raw = decrypted
	}

	var config map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return nil, err
	}
	return config, nil
}

func brokerURLFromConfig(config map[string]interface{}) string {
	broker, _ := config["mqtt_broker"].(string)
	port, _ := config["mqtt_port"].(float64)
	if broker == "" {
		broker = "localhost"
	}
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%.0f", broker, port)
}

func (mc *MQTTCollector) connectToAllBrokers() error {
	rows, err := mc.db.Query(`
		SELECT DISTINCT connection_config
		FROM meters
		WHERE is_active = 1 AND connection_type = 'mqtt'
	`)
	if err != nil {
		return fmt.Errorf("failed to query MQTT meters: %v", err)
	}
	defer rows.Close()

	brokerConfigs := make(map[string]map[string]interface{})

	for rows.Next() {
		var configJSON string
		if err := rows.Scan(&configJSON); err != nil {
			continue
		}

		config, err := loadMeterConfig(configJSON)
		if err != nil {
			log.Printf("ERROR: Failed to parse meter config: %v", err)
			continue
		}

		brokerConfigs[brokerURLFromConfig(config)] = config
	}

	if len(brokerConfigs) == 0 {
		log.Println("No MQTT brokers configured")
		return nil
	}

	for brokerURL, config := range brokerConfigs {
		if err := mc.connectToBroker(brokerURL, config); err != nil {
			log.Printf("ERROR: Failed to connect to broker %s: %v", brokerURL, err)
		}
	}

	return nil
}

func (mc *MQTTCollector) connectToBroker(brokerURL string, config map[string]interface{}) error {
	clientID := fmt.Sprintf("nk-billing-%d-%s", time.Now().Unix(), strings.ReplaceAll(brokerURL, ":", "_"))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(mc.createConnectionLostHandler(brokerURL))
	opts.SetOnConnectHandler(mc.createOnConnectHandler(brokerURL))

	username, _ := config["mqtt_username"].(string)
	password, _ := config["mqtt_password"].(string)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)

	log.Printf("Connecting to MQTT broker at %s...", brokerURL)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect: %v", token.Error())
	}

	mc.mu.Lock()
	mc.clients[brokerURL] = client
	mc.mu.Unlock()

	log.Printf("✓ Connected to MQTT broker: %s", brokerURL)
	return nil
}

func (mc *MQTTCollector) createOnConnectHandler(brokerURL string) func(mqtt.Client) {
	return func(client mqtt.Client) {
		log.Printf("MQTT connection established to %s, subscribing to meter topics...", brokerURL)
		mc.subscribeToMeters(brokerURL)
	}
}

func (mc *MQTTCollector) createConnectionLostHandler(brokerURL string) func(mqtt.Client, error) {
	return func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost to %s: %v - will attempt to reconnect", brokerURL, err)

		mc.mu.Lock()
		for meterID, broker := range mc.meterBrokers {
			if broker == brokerURL {
				if reading, exists := mc.readings[meterID]; exists {
					reading.IsConnected = false
					mc.readings[meterID] = reading
				}
			}
		}
		mc.mu.Unlock()
	}
}

func (mc *MQTTCollector) monitorConnections() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-mc.stopChan:
			return
		case <-ticker.C:
			mc.mu.RLock()
			for brokerURL, client := range mc.clients {
				if !client.IsConnected() {
					log.Printf("MQTT client disconnected from %s, attempting to reconnect...", brokerURL)
					if token := client.Connect(); token.Wait() && token.Error() != nil {
						log.Printf("Failed to reconnect to %s: %v", brokerURL, token.Error())
					}
				}
			}
			mc.mu.RUnlock()
		}
	}
}

func (mc *MQTTCollector) unsubscribeFromAllTopics(brokerURL string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	client := mc.clients[brokerURL]
	if client == nil || !client.IsConnected() {
		return
	}

	if topics, exists := mc.subscriptions[brokerURL]; exists && len(topics) > 0 {
		for _, topic := range topics {
			if token := client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
				log.Printf("WARNING: Failed to unsubscribe from %s: %v", topic, token.Error())
			}
		}
		mc.subscriptions[brokerURL] = []string{}
	}
}

func (mc *MQTTCollector) subscribeToMeters(brokerURL string) {
	// Re-subscribing after reconnect must not stack duplicate handlers
	mc.unsubscribeFromAllTopics(brokerURL)

	rows, err := mc.db.Query(`
		SELECT id, name, meter_type, connection_config
		FROM meters
		WHERE is_active = 1 AND connection_type = 'mqtt'
	`)
	if err != nil {
		log.Printf("ERROR: Failed to query MQTT meters: %v", err)
		return
	}
	defer rows.Close()

	mc.mu.RLock()
	client := mc.clients[brokerURL]
	mc.mu.RUnlock()

	if client == nil {
		log.Printf("ERROR: No client found for broker %s", brokerURL)
		return
	}

	meterCount := 0
	subscribedTopics := []string{}

	for rows.Next() {
		var id int
		var name, meterType, configJSON string
		if err := rows.Scan(&id, &name, &meterType, &configJSON); err != nil {
			continue
		}

		config, err := loadMeterConfig(configJSON)
		if err != nil {
			log.Printf("ERROR: Failed to parse config for meter '%s': %v", name, err)
			continue
		}

		if brokerURLFromConfig(config) != brokerURL {
			continue
		}

		topic, ok := config["mqtt_topic"].(string)
		if !ok || topic == "" {
			log.Printf("WARNING: No MQTT topic configured for meter '%s'", name)
			continue
		}

		mc.mu.Lock()
		mc.meterBrokers[id] = brokerURL
		mc.meterTopics[id] = topic
		mc.mu.Unlock()

		alreadySubscribed := false
		for _, existing := range subscribedTopics {
			if existing == topic {
				alreadySubscribed = true
				break
			}
		}
		if alreadySubscribed {
			continue
		}

		scale := 1.0
		if s, ok := config["scale"].(float64); ok && s > 0 {
			scale = s
		}

		if token := client.Subscribe(topic, 1, mc.createMeterHandler(id, name, meterType, scale)); token.Wait() && token.Error() != nil {
			log.Printf("ERROR: Failed to subscribe to topic '%s' for meter '%s': %v", topic, name, token.Error())
		} else {
			log.Printf("✓ Subscribed to MQTT topic '%s' for meter '%s' (%s)", topic, name, meterType)
			subscribedTopics = append(subscribedTopics, topic)
			meterCount++
		}
	}

	mc.mu.Lock()
	mc.subscriptions[brokerURL] = subscribedTopics
	mc.mu.Unlock()

	log.Printf("=== MQTT subscriptions complete for %s: %d meters, %d topics ===", brokerURL, meterCount, len(subscribedTopics))
}

func (mc *MQTTCollector) createMeterHandler(meterID int, meterName, meterType string, scale float64) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()

		value, timestamp, found := parseMeterPayload(payload)

		if !found {
			log.Printf("WARNING: Could not parse MQTT message for meter '%s' (%s): %s",
				meterName, meterType, string(payload))
			return
		}

		value *= scale
		if value < 0 {
			return
		}

		mc.mu.Lock()
		mc.readings[meterID] = MQTTMeterValue{
			Value:       value,
			Timestamp:   timestamp,
			LastUpdated: time.Now(),
			IsConnected: true,
		}
		mc.mu.Unlock()

		log.Printf("✓ MQTT: Buffered reading for meter '%s': %.3f", meterName, value)
	}
}

// parseMeterPayload accepts either a JSON object with a recognized total
// field or a bare numeric value.
func parseMeterPayload(payload []byte) (float64, time.Time, bool) {
	var generic GenericMeterMessage
	if err := json.Unmarshal(payload, &generic); err == nil {
		candidates := []*float64{
			generic.Value, generic.Reading, generic.Total,
			generic.Energy, generic.Volume,
			generic.TotalKWh, generic.TotalM3, generic.Consumption,
		}
		for _, c := range candidates {
			if c != nil {
				timestamp := time.Now()
				if generic.Timestamp > 0 {
					timestamp = time.Unix(generic.Timestamp/1000, 0)
				}
				return *c, timestamp, true
			}
		}
	}

	var numeric float64
	if err := json.Unmarshal(payload, &numeric); err == nil {
		return numeric, time.Now(), true
	}

	return 0, time.Time{}, false
}

// GetMeterReading returns the buffered cumulative value for a meter.
// Stale buffers are rejected so a dead gateway cannot freeze a register
// value into the readings table indefinitely.
func (mc *MQTTCollector) GetMeterReading(meterID int) (float64, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	reading, exists := mc.readings[meterID]
	if !exists {
		return 0, false
	}

	if time.Since(reading.LastUpdated) > 2*time.Hour {
		log.Printf("WARNING: MQTT reading for meter %d is stale (%.0f minutes old)",
			meterID, time.Since(reading.LastUpdated).Minutes())
		return 0, false
	}

	return reading.Value, true
}

func (mc *MQTTCollector) RestartConnections() {
	log.Println("=== Restarting MQTT Collector ===")

	mc.Stop()
	time.Sleep(2 * time.Second)

	mc.mu.Lock()
	mc.stopChan = make(chan bool)
	mc.mu.Unlock()

	mc.Start()
}

func (mc *MQTTCollector) GetConnectionStatus() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	anyBrokerConnected := false
	connectedBrokers := []string{}

	for brokerURL, client := range mc.clients {
		if client != nil && client.IsConnected() {
			anyBrokerConnected = true
			connectedBrokers = append(connectedBrokers, brokerURL)
		}
	}

	var mqttMeterCount int
	mc.db.QueryRow("SELECT COUNT(*) FROM meters WHERE is_active = 1 AND connection_type = 'mqtt'").Scan(&mqttMeterCount)

	connections := make(map[int]map[string]interface{})
	for meterID, reading := range mc.readings {
		brokerURL := mc.meterBrokers[meterID]
		client := mc.clients[brokerURL]
		isBrokerConnected := client != nil && client.IsConnected()

		connections[meterID] = map[string]interface{}{
			"is_connected": reading.IsConnected && isBrokerConnected,
			"last_value":   reading.Value,
			"last_update":  reading.LastUpdated.Format(time.RFC3339),
			"topic":        mc.meterTopics[meterID],
		}

		if !isBrokerConnected {
			connections[meterID]["last_error"] = fmt.Sprintf("Broker %s is not connected", brokerURL)
		} else if !reading.IsConnected {
			connections[meterID]["last_error"] = "Waiting for data"
		}
	}

	return map[string]interface{}{
		"mqtt_brokers_total":     len(mc.clients),
		"mqtt_broker_connected":  anyBrokerConnected,
		"mqtt_connected_brokers": connectedBrokers,
		"mqtt_meters_count":      mqttMeterCount,
		"mqtt_connections":       connections,
	}
}
