// Package service contains the application layer for priceuq.
//
// Services sit between the HTTP handlers and workers on one side and the
// repositories and artifact store on the other. The numeric core (model,
// uncertainty, attribution) knows nothing about persistence; services load
// its inputs, run it and record its outputs.
//
//   - TrainingService: creates runs and executes them on the workers
//   - PredictionService: scores batches with decomposed uncertainty
//   - AttributionService: sampled Shapley explanations, inline or queued
//   - NeighborhoodService: imports and caches neighborhood profiles
//   - ReportService: publishes validation reports under dated keys
//   - RealtimeService: fans run progress out to stream subscribers
//
// Repository and queue interfaces are declared here, next to the code that
// uses them. All services are safe for concurrent use.
package service
