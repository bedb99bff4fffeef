package scorer

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DefaultReportPolicy scores citizen incident reports. The score is a
// credibility estimate: emergency vocabulary and detail push it up, spam and
// joke vocabulary push it down. Starting from a neutral 0.5 baseline, a
// single strong signal is not enough to auto-resolve; auto-approval needs
// several emergency terms plus detail.
func DefaultReportPolicy() Policy {
	return Policy{
		Channel:  "report",
		Baseline: 0.5,
		Lexicons: []Lexicon{
			{
				Name:   "emergency",
				Weight: 0.15,
				Terms: []string{
					"urgente", "urgencia", "emergencia", "socorro", "resgate",
					"evacuacao", "evacuar", "risco", "vida", "vidas", "perigo",
					"ferido", "feridos", "vitima", "vitimas", "soterrado",
					"desabamento", "deslizamento", "enchente", "inundacao",
					"alagamento", "incendio", "desabou", "ilhado", "ilhados",
				},
			},
			{
				Name:   "suspicious",
				Weight: -0.15,
				Terms: []string{
					"teste", "fake", "falso", "mentira", "brincadeira",
					"zoeira", "pegadinha", "spam", "golpe", "kkk",
				},
			},
			{
				Name:   "hate",
				Weight: -0.4,
				Terms:  defaultHateTerms(),
			},
		},
		CategoryBoost: map[string]float64{
			"landslide": 0.05,
			"flood":     0.05,
			"fire":      0.05,
			"storm":     0.05,
		},
		DetailLength: 40,
		DetailBonus:  0.1,
		ShortLength:  20,
		ShortPenalty: -0.2,
		CapsRatio:    0.6,
		CapsWeight:   -0.1,

		HighMin:    0.8,
		HighRec:    RecommendApprove,
		LowMax:     0.3,
		LowRec:     RecommendReject,
		MidMin:     0, // disabled
		DefaultRec: RecommendReview,
	}
}

// DefaultChatPolicy scores community chat messages. Here the score is a
// violation estimate starting at zero: abusive vocabulary, shouting, and
// spam push it toward hide/block.
func DefaultChatPolicy() Policy {
	return Policy{
		Channel:  "chat",
		Baseline: 0.0,
		Lexicons: []Lexicon{
			{
				Name:   "hate",
				Weight: 0.5,
				Terms:  defaultHateTerms(),
			},
			{
				Name:   "threat",
				Weight: 0.4,
				Terms: []string{
					"matar", "morrer", "ameaca", "ameacar", "apanhar",
					"bater", "arma", "explodir",
				},
			},
			{
				Name:   "spam",
				Weight: 0.25,
				Terms: []string{
					"compre", "promocao", "gratis", "clique", "ganhe",
					"premio", "sorteio", "aposta", "bonus", "cadastre",
				},
			},
		},
		CapsRatio:       0.5,
		CapsWeight:      0.15,
		RepeatRunLength: 5,
		RepeatRunWeight: 0.1,

		HighMin:    0.7,
		HighRec:    RecommendBlock,
		LowMax:     -1, // disabled
		MidMin:     0.4,
		MidRec:     RecommendHide,
		DefaultRec: RecommendAllow,
	}
}

func defaultHateTerms() []string {
	return []string{
		"odeio", "nojento", "nojenta", "lixo", "escoria", "verme",
		"desgraca", "maldito", "maldita", "imundo", "imunda",
	}
}

type lexiconFile struct {
	Lexicons []struct {
		Name   string   `json:"name"`
		Weight float64  `json:"weight"`
		Terms  []string `json:"terms"`
	} `json:"lexicons"`
}

// LoadLexiconsFileJSON replaces the policy's lexicons with ones loaded from a
// JSON config file, keeping the rest of the policy intact. Operators use this
// to tune vocabulary without a redeploy.
func (p *Policy) LoadLexiconsFileJSON(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var lf lexiconFile
	if err := json.Unmarshal(raw, &lf); err != nil {
		return fmt.Errorf("parsing lexicon file %s: %w", path, err)
	}

	var out []Lexicon
	for _, l := range lf.Lexicons {
		out = append(out, Lexicon{Name: l.Name, Weight: l.Weight, Terms: l.Terms})
	}
	p.Lexicons = out
	return nil
}
