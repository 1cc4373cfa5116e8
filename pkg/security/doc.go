/*
Package security groups request authentication for Sentinel.

Authentication only establishes who is calling; it never rejects anonymous
traffic. The admission layer uses the resulting principal to key counters
per user and to choose the tier policy. See package auth.
*/
package security
