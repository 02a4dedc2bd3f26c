package services

import (
	"log"
	"net/http"
	"os"

	"app_marketplace/marketplace/auth"
	"app_marketplace/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Marketplace composes the individual services into a single router.
type Marketplace struct {
	user    UserService
	company CompanyService
	app     AppService
	catalog CatalogService

	db *gorm.DB
}

func NewMarketplace(db *gorm.DB, userAuth auth.IdentityProvider) Marketplace {
	recorder := NewRecorder(db)

	return Marketplace{
		user:    UserService{db: db, userAuth: userAuth},
		company: CompanyService{db: db, userAuth: userAuth},
		app: AppService{
			db:       db,
			userAuth: userAuth,
			recorder: recorder,
			install:  &InstallService{db: db, recorder: recorder},
		},
		catalog: CatalogService{db: db, userAuth: userAuth},
		db:      db,
	}
}

func (m *Marketplace) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))

	r.Mount("/user", m.user.Routes())
	r.Mount("/company", m.company.Routes())
	r.Mount("/app", m.app.Routes())
	r.Mount("/catalog", m.catalog.Routes())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	return r
}
