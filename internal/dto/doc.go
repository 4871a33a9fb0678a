// Package dto holds the HTTP request bodies of the priceuq API and their
// validation rules.
//
// Handlers decode with ParseAndValidate, which answers 400 with the list of
// failing fields, then convert to service inputs:
//
//	var req dto.PredictRequest
//	if err := dto.ParseAndValidate(c, &req); err != nil {
//	    return err
//	}
package dto
