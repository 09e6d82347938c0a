package core

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/fede1024/kafka-view-sub000/core/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Routes struct {
	Router *mux.Router

	apiRoutePrefix string
	apiVersion     string
	opsRoutePrefix string

	tableWriter *tabwriter.Writer
}

func (r *Routes) registerOpsRoute(method, route string, handler func(http.ResponseWriter, *http.Request)) *Routes {
	completeRoute := "/" + r.opsRoutePrefix + route

	fmt.Fprintln(r.tableWriter, method+"\t "+completeRoute)

	r.Router.HandleFunc(completeRoute, handler).Methods(method)
	return r
}

func (r *Routes) registerApiRoute(method, route string, handler func(http.ResponseWriter, *http.Request)) *Routes {
	completeRoute := "/" + r.apiRoutePrefix + "/" + r.apiVersion + route

	fmt.Fprintln(r.tableWriter, method+"\t "+completeRoute)

	r.Router.HandleFunc(completeRoute, handler).Methods(method)
	return r
}

func NewRoutes(handler *handlers.Handler) *Routes {
	routes := &Routes{
		Router:         mux.NewRouter(),
		apiRoutePrefix: "api",
		apiVersion:     "v0",
		opsRoutePrefix: "ops",
		tableWriter:    tabwriter.NewWriter(os.Stdout, 5, 0, 3, ' ', tabwriter.Debug),
	}

	fmt.Fprintln(routes.tableWriter, "METHOD\t ROUTE")

	routes.
		registerOpsRoute("GET", "/health", handler.HealthCheck).
		registerOpsRoute("GET", "/config/dump", handler.ConfigDump).
		registerOpsRoute("GET", "/metrics", promhttp.Handler().ServeHTTP).
		registerApiRoute("GET", "/clusters", handler.ListClusters).
		registerApiRoute("GET", "/clusters/{cluster}/brokers", handler.ListBrokers).
		registerApiRoute("GET", "/clusters/{cluster}/topics", handler.ListTopics).
		registerApiRoute("GET", "/clusters/{cluster}/topics/{topic}", handler.GetTopic).
		registerApiRoute("GET", "/clusters/{cluster}/topics/{topic}/groups", handler.ListTopicGroups).
		registerApiRoute("GET", "/clusters/{cluster}/groups", handler.ListGroups).
		registerApiRoute("GET", "/clusters/{cluster}/groups/{group}/members", handler.GetGroupMembers).
		registerApiRoute("GET", "/clusters/{cluster}/groups/{group}/offsets", handler.GetGroupOffsets).
		registerApiRoute("GET", "/tailer/{cluster}/{topic}/{id:[0-9]+}", handler.TailTopic).
		registerApiRoute("GET", "/internals/cache/{name}", handler.DumpCache).
		registerApiRoute("GET", "/internals/live_consumers", handler.ListLiveConsumers)

	routes.tableWriter.Flush()

	return routes
}
