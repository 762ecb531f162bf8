package app

import (
	"database/sql"
	"net/http"
	"time"

	"qbank/internal/app/observability"
	"qbank/internal/auth"
	"qbank/internal/course"
	"qbank/internal/exam"
	"qbank/internal/export"
	"qbank/internal/logger"
	"qbank/internal/masterdata"
	"qbank/internal/question"
	"qbank/internal/report"
	"qbank/internal/selection"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(cfg Config, db *sql.DB, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	collector := observability.NewCollector(db, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(collector.Middleware)

	authSvc := auth.NewService(db, auth.NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer))
	authHandler := auth.NewHandler(authSvc)

	masterSvc := masterdata.NewService(db)
	masterHandler := masterdata.NewHandler(masterSvc)

	courseHandler := course.NewHandler(course.NewService(db))

	questionSvc := question.NewService(db, cfg.StorageDir)
	questionHandler := question.NewHandler(questionSvc)

	examSvc := exam.NewService(db, loc)
	examHandler := exam.NewHandler(examSvc)

	reportHandler := report.NewHandler(report.NewService(db, examSvc))
	selectionHandler := selection.NewHandler(selection.NewService(db, examSvc))

	images := export.FileImageLoader{Images: questionSvc, StorageDir: cfg.StorageDir}
	exportHandler := export.NewHandler(export.NewService(db, examSvc, images, log.With("component", "export")))
	exportLimiter := RateLimitMiddleware(NewIPRateLimiter(cfg.ExportRatePerMin, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/me", authHandler.Me)

			secure.Get("/committees", masterHandler.ListCommittees)
			secure.Get("/committees/{id}", masterHandler.GetCommittee)

			secure.Get("/courses", courseHandler.List)
			secure.Get("/courses/{id}", courseHandler.Get)
			secure.Put("/courses/{id}", courseHandler.Update)
			secure.Delete("/courses/{id}", courseHandler.Delete)
			secure.Post("/courses/{id}/questions/import", questionHandler.ImportExcel)
			secure.Get("/courses/{id}/selection/{examID}", selectionHandler.Get)
			secure.Post("/courses/{id}/selection/{examID}", selectionHandler.Apply)

			secure.Get("/questions", questionHandler.List)
			secure.Post("/questions", questionHandler.Create)
			secure.Get("/questions/export.xlsx", questionHandler.ExportExcel)
			secure.Get("/questions/{id}", questionHandler.Get)
			secure.Put("/questions/{id}", questionHandler.Update)
			secure.Delete("/questions/{id}", questionHandler.Delete)
			secure.Post("/questions/{id}/images", questionHandler.UploadImage)

			secure.Get("/exams", examHandler.List)
			secure.Get("/exams/{id}", examHandler.Get)
			secure.Post("/exams/{id}/lock", examHandler.Lock)
			secure.Get("/exams/{id}/summary", reportHandler.Summary)
			secure.Put("/exams/{id}/quotas", examHandler.UpdateQuotas)
			secure.Get("/exams/{id}/questions", examHandler.SelectedQuestions)
			secure.With(exportLimiter).Get("/exams/{id}/export/moodle.xml", exportHandler.Moodle)
			secure.With(exportLimiter).Get("/exams/{id}/export/aiken.txt", exportHandler.Aiken)

			secure.Group(func(admin chi.Router) {
				admin.Use(authHandler.RequireSuperuser)
				admin.Post("/committees", masterHandler.CreateCommittee)
				admin.Put("/faculty", masterHandler.UpsertFaculty)
				admin.Post("/courses", courseHandler.Create)
				admin.Post("/exams", examHandler.Create)
				admin.Put("/exams/{id}", examHandler.Update)
				admin.Delete("/exams/{id}", examHandler.Delete)
			})
		})
	})

	return r, nil
}
