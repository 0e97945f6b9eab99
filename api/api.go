/*
Copyright 2024 Brazil Data Cube Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"github.com/gin-gonic/gin"

	builder "github.com/brazil-data-cube/bdc-collection-builder-sub001"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/api/middleware"
	"github.com/brazil-data-cube/bdc-collection-builder-sub001/config"
)

type Api struct {
	builder *builder.Builder
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/scenes", a.IngestScene)

	router.GET("/activities", a.GetAllActivities)
	router.GET("/activities/:id", a.GetActivity)
	router.POST("/activities/:id/suspend", a.SuspendActivity)

	router.POST("/restart", a.Restart)
	router.POST("/dispatch", a.Dispatch)

	router.GET("/catalog", a.SearchCatalog)
	router.GET("/catalog/:scene_ref/products", a.GetCatalogProducts)

	return a.router
}

func NewAPI(b *builder.Builder) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{builder: b, router: r}
}
