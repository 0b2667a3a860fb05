// Package ves provides USD/VES exchange rate providers.
//
// # Providers
//
// ## BCV (Official Central Bank)
//
// Source: "BCV"
// URL: https://www.bcv.org.ve/estadisticas/tipo-cambio-de-referencia-smc
// Interval: 24 hours
//
// Walks the paginated statistics index, and caches the linked legacy .xls
// workbooks locally. The newest workbook is downloaded on every run, the
// rest only once. Each workbook sheet holds a single day: the date is read
// from the label cell (row 4, column 3), and the USD rate from the last
// non-empty cell of row 14. An unreachable index degrades to the cache.
//
// ## Paralelo (Telegram channel)
//
// Source: "paralelo"
// Channel: enparalelovzlatelegram
// Interval: 1 hour
//
// Reads the channel messages containing "Bs." newer than the stored cursor,
// and extracts the date, time and value of every rate announcement.
// Emojis and other noise are stripped before matching.
//
// # Normalization
//
// Every rate is stored in fixed point (4 decimal places), in post
// redenomination bolivars: rates observed before 2021-10-01 00:00 (UTC-4)
// are divided by 1,000,000 (floor). A small table of known upstream data
// errors is applied after normalization.
package ves
