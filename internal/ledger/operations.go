package ledger

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// TaskReward pays bounty from the system wallet to a task's assignee,
// idempotent on task_id: re-submitting the same task_id is rejected as
// a duplicate reference, leaving balances unchanged.
func (l *Ledger) TaskReward(userID int64, taskID string, amountGold int64) (string, error) {
	refID := fmt.Sprintf("task-reward:%s", taskID)
	return l.Transfer(SystemWalletID, userID, amountGold, TxTaskReward, fmt.Sprintf("task reward for %s", taskID), &refID)
}

// P2PTransfer moves amount from sender to recipient, then burns a fee
// from the sender: fee = max(MIN_FEE, ceil(amount*FEE_RATE)).
func (l *Ledger) P2PTransfer(from, to int64, amount int64) (transferTxID, feeTxID string, fee int64, err error) {
	circulating, err := l.circulating()
	if err != nil {
		return "", "", 0, err
	}
	if amount < MinimumTransfer(circulating) {
		return "", "", 0, fmt.Errorf("ledger: amount below minimum transfer of %d", MinimumTransfer(circulating))
	}

	transferTxID, err = l.Transfer(from, to, amount, TxP2PTransfer, "p2p transfer", nil)
	if err != nil {
		return "", "", 0, err
	}

	fee = TransferFee(amount)
	feeTxID, err = l.Burn(from, fee, TxFeeBurn, "p2p transfer fee")
	if err != nil {
		return transferTxID, "", fee, err
	}
	return transferTxID, feeTxID, fee, nil
}

func (l *Ledger) circulating() (int64, error) {
	s, err := l.Supply()
	if err != nil {
		return 0, err
	}
	return s.Circulating, nil
}

// RunDemurrage burns floor(balance*0.02) from every wallet with
// user_id != 0 and balance > 100. Each wallet's burn is its own Burn
// transaction; the cycle as a whole is not one transaction, so a failed
// burn is logged and skipped while burns already committed stay. Returns
// the number of wallets affected and total burned.
func (l *Ledger) RunDemurrage() (affected int, totalBurned int64, err error) {
	rows, err := l.db.Query(`SELECT user_id, balance FROM wallets WHERE user_id != 0`)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: demurrage scan: %w", err)
	}
	type candidate struct {
		userID  int64
		balance int64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.userID, &c.balance); err != nil {
			rows.Close()
			return 0, 0, fmt.Errorf("ledger: demurrage scan row: %w", err)
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	for _, c := range candidates {
		if IsDemurrageExempt(c.balance) {
			continue
		}
		amount := DemurrageAmount(c.balance)
		if amount <= 0 {
			continue
		}
		if _, err := l.Burn(c.userID, amount, TxDemurrage, "periodic demurrage"); err != nil {
			l.log.Warn().Err(err).Int64("user_id", c.userID).Msg("ledger: demurrage burn failed for wallet")
			continue
		}
		affected++
		totalBurned += amount
	}
	return affected, totalBurned, nil
}

// RegisterDevice upserts a device record.
func (l *Ledger) RegisterDevice(d Device) error {
	_, err := l.db.Exec(`INSERT INTO devices (device_id, owner_id, device_type, display_name, topic_prefix, xp, is_active)
		VALUES (?,?,?,?,?,0,1)
		ON CONFLICT(device_id) DO UPDATE SET owner_id=excluded.owner_id, device_type=excluded.device_type,
			display_name=excluded.display_name, topic_prefix=excluded.topic_prefix`,
		d.DeviceID, d.OwnerID, string(d.DeviceType), d.DisplayName, d.TopicPrefix)
	if err != nil {
		return fmt.Errorf("ledger: register device %s: %w", d.DeviceID, err)
	}
	return nil
}

// ListDevices returns every registered device.
func (l *Ledger) ListDevices() ([]*Device, error) {
	rows, err := l.db.Query(`SELECT device_id, owner_id, device_type, display_name, topic_prefix, xp, is_active, last_heartbeat_at FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list devices: %w", err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

func scanDevices(rows *sql.Rows) ([]*Device, error) {
	var out []*Device
	for rows.Next() {
		var d Device
		var deviceType string
		var isActive int
		var lastHeartbeat sql.NullTime
		if err := rows.Scan(&d.DeviceID, &d.OwnerID, &deviceType, &d.DisplayName, &d.TopicPrefix, &d.XP, &isActive, &lastHeartbeat); err != nil {
			return nil, fmt.Errorf("ledger: scan device: %w", err)
		}
		d.DeviceType = DeviceType(deviceType)
		d.IsActive = isActive != 0
		if lastHeartbeat.Valid {
			d.LastHeartbeatAt = &lastHeartbeat.Time
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// DevicesForZone returns every active device whose topic_prefix matches
// office/{zone}/%.
func (l *Ledger) DevicesForZone(zone string) ([]*Device, error) {
	prefix := fmt.Sprintf("office/%s/", zone)
	rows, err := l.db.Query(`SELECT device_id, owner_id, device_type, display_name, topic_prefix, xp, is_active, last_heartbeat_at
		FROM devices WHERE is_active = 1 AND topic_prefix LIKE ? || '%'`, prefix)
	if err != nil {
		return nil, fmt.Errorf("ledger: devices for zone %s: %w", zone, err)
	}
	defer rows.Close()
	return scanDevices(rows)
}

// GrantDeviceXP increments xp for every active device in zone.
func (l *Ledger) GrantDeviceXP(zone string, xp int64) error {
	devices, err := l.DevicesForZone(zone)
	if err != nil {
		return err
	}
	for _, d := range devices {
		if _, err := l.db.Exec(`UPDATE devices SET xp = xp + ? WHERE device_id = ?`, xp, d.DeviceID); err != nil {
			return fmt.Errorf("ledger: grant xp to %s: %w", d.DeviceID, err)
		}
	}
	return nil
}

// ZoneMultiplier computes clamp(1 + avg_xp/1000*0.5, 1, 3) over a
// zone's active devices. Returns 1.0 if the zone has no devices.
func (l *Ledger) ZoneMultiplier(zone string) (float64, error) {
	devices, err := l.DevicesForZone(zone)
	if err != nil {
		return 1.0, err
	}
	if len(devices) == 0 {
		return 1.0, nil
	}
	var totalXP int64
	for _, d := range devices {
		totalXP += d.XP
	}
	avgXP := float64(totalXP) / float64(len(devices))
	multiplier := 1 + avgXP/1000*0.5
	return math.Min(math.Max(multiplier, 1.0), 3.0), nil
}

// Heartbeat records a device's heartbeat and, if uptime since the
// previous heartbeat clears the device type's minimum, issues an
// infrastructure reward idempotent on reference_id.
func (l *Ledger) Heartbeat(deviceID string) (rewardTxID string, err error) {
	var ownerID int64
	var deviceType string
	var lastHeartbeat sql.NullTime
	err = l.db.QueryRow(`SELECT owner_id, device_type, last_heartbeat_at FROM devices WHERE device_id = ?`, deviceID).
		Scan(&ownerID, &deviceType, &lastHeartbeat)
	if err != nil {
		return "", fmt.Errorf("ledger: heartbeat lookup %s: %w", deviceID, err)
	}

	now := time.Now()
	if _, err := l.db.Exec(`UPDATE devices SET last_heartbeat_at = ? WHERE device_id = ?`, now, deviceID); err != nil {
		return "", fmt.Errorf("ledger: record heartbeat %s: %w", deviceID, err)
	}

	if !lastHeartbeat.Valid {
		return "", nil
	}

	rate, minUptime, err := l.rewardRateFor(DeviceType(deviceType))
	if err != nil {
		return "", err
	}
	uptimeSec := now.Sub(lastHeartbeat.Time).Seconds()
	if int64(uptimeSec) < minUptime || rate <= 0 {
		return "", nil
	}

	amount := int64(math.Round(float64(rate) * uptimeSec / 3600))
	if amount <= 0 {
		return "", nil
	}

	refID := fmt.Sprintf("infra:%s:%d", deviceID, now.Unix())
	txID, err := l.Transfer(SystemWalletID, ownerID, amount, TxInfrastructureReward, "infrastructure heartbeat reward", &refID)
	if err != nil && err != ErrDuplicateReference {
		return "", err
	}
	return txID, nil
}

func (l *Ledger) rewardRateFor(deviceType DeviceType) (ratePerHour, minUptimeSec int64, err error) {
	err = l.db.QueryRow(`SELECT rate_per_hour, min_uptime_for_reward_sec FROM reward_rates WHERE device_type = ?`, string(deviceType)).
		Scan(&ratePerHour, &minUptimeSec)
	if err == sql.ErrNoRows {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: reward rate for %s: %w", deviceType, err)
	}
	return ratePerHour, minUptimeSec, nil
}

// SetRewardRate upserts the reward rate configuration for a device type.
func (l *Ledger) SetRewardRate(rr RewardRate) error {
	_, err := l.db.Exec(`INSERT INTO reward_rates (device_type, rate_per_hour, min_uptime_for_reward_sec)
		VALUES (?,?,?)
		ON CONFLICT(device_type) DO UPDATE SET rate_per_hour=excluded.rate_per_hour, min_uptime_for_reward_sec=excluded.min_uptime_for_reward_sec`,
		string(rr.DeviceType), rr.RatePerHour, rr.MinUptimeForRewardSec)
	if err != nil {
		return fmt.Errorf("ledger: set reward rate %s: %w", rr.DeviceType, err)
	}
	return nil
}

// RewardRates returns every configured reward rate.
func (l *Ledger) RewardRates() ([]*RewardRate, error) {
	rows, err := l.db.Query(`SELECT device_type, rate_per_hour, min_uptime_for_reward_sec FROM reward_rates`)
	if err != nil {
		return nil, fmt.Errorf("ledger: reward rates: %w", err)
	}
	defer rows.Close()

	var out []*RewardRate
	for rows.Next() {
		var rr RewardRate
		var deviceType string
		if err := rows.Scan(&deviceType, &rr.RatePerHour, &rr.MinUptimeForRewardSec); err != nil {
			return nil, fmt.Errorf("ledger: scan reward rate: %w", err)
		}
		rr.DeviceType = DeviceType(deviceType)
		out = append(out, &rr)
	}
	return out, rows.Err()
}
