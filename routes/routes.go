package routes

import (
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"

	"github.com/mbolis/quick-forms/app"
	"github.com/mbolis/quick-forms/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Recoverer, middlewares.Metrics)

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// public surface
	api.Get(`/forms/{id:^\d+$}`, PublicGetFormById(app))
	api.Post(`/forms/{id:^\d+$}/submissions`, SubmitForm(app))
	api.Get(`/submissions/{id:^\d+$}`, GetSubmissionById(app))
	api.Get(`/forms/{id:^\d+$}/questions/{qid:^\d+$}/statistics`, GetStatistics(app))

	api.Route("/admin", func(r chi.Router) {
		// CRUD question bank
		r.Post("/questions", CreateQuestion(app))
		r.Get("/questions", ListQuestions(app))
		r.Get(`/questions/{id:^\d+$}`, GetQuestionById(app))
		r.Put(`/questions/{id:^\d+$}`, UpdateQuestion(app))
		r.Delete(`/questions/{id:^\d+$}`, DeleteQuestion(app))

		r.Post(`/questions/{id:^\d+$}/options/{key}/rename`, RenameOption(app))
		r.Get(`/questions/{id:^\d+$}/options/{key}/history`, GetOptionHistory(app))

		// CRUD forms
		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Get(`/forms/{id:^\d+$}`, GetFormById(app))
		r.Put(`/forms/{id:^\d+$}`, UpdateForm(app))
		r.Delete(`/forms/{id:^\d+$}`, DeleteForm(app))

		r.Get(`/forms/{id:^\d+$}/submissions`, GetFormSubmissions(app))
	})

	return api
}
