package handler

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/precinct-ops/duty-roster/backend/internal/audit"
	"github.com/precinct-ops/duty-roster/backend/internal/config"
	"github.com/precinct-ops/duty-roster/backend/internal/emergency"
	"github.com/precinct-ops/duty-roster/backend/internal/partnership"
	"github.com/precinct-ops/duty-roster/backend/internal/pto"
	"github.com/precinct-ops/duty-roster/backend/internal/settings"
	"github.com/precinct-ops/duty-roster/backend/internal/store"
)

// Services 是 handler 依赖的引擎组件
type Services struct {
	Ledger    *partnership.Ledger
	PTO       *pto.Manager
	Emergency *emergency.Resolver
	Settings  settings.Source
	Audit     audit.Recorder
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	store      store.Store
	translator ut.Translator
	services   Services
	now        func() time.Time

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, s store.Store, services Services) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		store:      s,
		translator: trans,
		services:   services,
		now:        services.Ledger.Now,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)
	h.Mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// 所有 API 都需要携带令牌，令牌中的身份用于审计
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.actor)

		r.Route("/officers", func(r chi.Router) {
			r.Get("/roster", h.GetRoster)
			r.Get("/force-list", h.GetForceList)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.officerInfo)
				r.Get("/service-credit", h.GetServiceCredit)
				r.Get("/partnership", h.GetPartnershipStatus)
			})
		})

		r.Route("/pto", func(r chi.Router) {
			r.Post("/", h.AssignPTO)
			r.Post("/remove", h.RemovePTO)
		})

		r.Route("/emergency", func(r chi.Router) {
			r.Get("/candidates", h.GetEmergencyCandidates)
			r.Post("/bonds", h.CreateEmergencyBond)
			r.Post("/bonds/dissolve", h.DissolveEmergencyBond)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/pto-balances", h.GetPTOBalancesSetting)
			r.Put("/pto-balances", h.UpdatePTOBalancesSetting)
		})
	})
}
