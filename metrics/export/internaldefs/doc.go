// Package internaldefs maps client metric IDs onto the labelled series both
// exporters publish, so Prometheus and OTel output agree.
package internaldefs
