package combat

import "log/slog"

// Simplified XP tables for encounter difficulty checks.
var crXP = map[string]int{
	"0": 10, "1/8": 25, "1/4": 50, "1/2": 100,
	"1": 200, "2": 450, "3": 700, "4": 1100, "5": 1800,
	"6": 2300, "7": 2900, "8": 3900, "9": 5000, "10": 5900,
}

// XP thresholds per character level: easy, medium, hard, deadly.
var levelThresholds = map[int][4]int{
	1: {25, 50, 75, 100},
	2: {50, 100, 150, 200},
	3: {75, 150, 225, 400},
	4: {125, 250, 375, 500},
	5: {250, 500, 750, 1100},
}

const defaultPartyLevel = 3

// partyThresholds sums the per-member thresholds, assuming a default
// level since the party payload does not carry one.
func partyThresholds(party []PartyMember) [4]int {
	var totals [4]int
	for range party {
		th := levelThresholds[defaultPartyLevel]
		for i := range totals {
			totals[i] += th[i]
		}
	}
	return totals
}

// estimateCR approximates a challenge rating from hit points alone
// (HP/15 rule of thumb, floored at 1/8).
func estimateCR(hp int) float64 {
	cr := float64(hp) / 15.0
	if cr < 0.125 {
		return 0.125
	}
	return cr
}

func crKey(cr float64) string {
	switch {
	case cr <= 0.125:
		return "1/8"
	case cr <= 0.25:
		return "1/4"
	case cr <= 0.5:
		return "1/2"
	}
	key := int(cr)
	if key > 10 {
		key = 10
	}
	switch key {
	case 0:
		return "1/2"
	default:
		return [11]string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}[key]
	}
}

// groupMultiplier is the standard encounter multiplier for the total
// number of enemies.
func groupMultiplier(n int) float64 {
	switch {
	case n >= 7:
		return 2.5
	case n >= 3:
		return 2.0
	case n == 2:
		return 1.5
	default:
		return 1.0
	}
}

// AdjustEncounter checks the enemy groups against the party's deadly
// XP threshold and, when the encounter overshoots it, scales enemy hit
// points down, never below half, so the fight stays winnable. Dice
// quantities count their minimum roll for the estimate; the real size
// is rolled later at encounter start.
func AdjustEncounter(logger *slog.Logger, enemies []EnemyGroup, party []PartyMember) []EnemyGroup {
	if len(party) == 0 || len(enemies) == 0 {
		return enemies
	}

	deadly := partyThresholds(party)[3]

	totalXP := 0
	count := 0
	for _, e := range enemies {
		n := e.Count.Resolve(func(int) int { return 1 })
		if n < 1 {
			n = 1
		}
		count += n

		xp, ok := crXP[crKey(estimateCR(e.HP))]
		if !ok {
			xp = 100
		}
		totalXP += xp * n
	}

	adjusted := float64(totalXP) * groupMultiplier(count)
	logger.Info("encounter balance",
		slog.Int("encounter_xp", int(adjusted)),
		slog.Int("deadly_threshold", deadly))

	if adjusted <= float64(deadly) {
		return enemies
	}

	factor := float64(deadly) / adjusted
	if factor < 0.5 {
		factor = 0.5
	}

	out := make([]EnemyGroup, len(enemies))
	for i, e := range enemies {
		scaled := e
		if e.HP > 0 {
			scaled.HP = int(float64(e.HP) * factor)
			if scaled.HP < 1 {
				scaled.HP = 1
			}
		}
		logger.Info("enemy scaled down",
			slog.String("name", e.Name),
			slog.Int("hp", e.HP),
			slog.Int("scaled_hp", scaled.HP))
		out[i] = scaled
	}
	return out
}
