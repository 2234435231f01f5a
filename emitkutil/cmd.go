/*
Copyright (C) 2018 the emitk authors.
This file is part of emitk.

emitk is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

emitk is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with emitk.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package emitkutil wires the emitk packages into a command-line
// interface.
package emitkutil

import (
	"context"
	"fmt"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/airshedmodel/emitk/inventory"
)

// Version is the emitk version.
const Version = "0.1.0"

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to emitk.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose enables debug-level log output.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "db",
			usage: `
              db is the path to the inventory database.`,
			defaultVal: "emitk.db",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "proj4",
			usage: `
              proj4 is a PROJ.4 specification of a spatial reference.
              For 'init' it sets the inventory projection (default WGS84);
              for 'rasterize' and 'grid' it sets the output grid projection,
              where the empty value means the inventory projection.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{initCmd.Flags(), rasterizeCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "extent",
			usage: `
              extent is a bounding box given as 'x1 y1 x2 y2'. For 'init'
              it sets the inventory domain; for 'rasterize' and 'grid' it
              sets the output grid extent, where the empty value means the
              inventory domain.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{initCmd.Flags(), rasterizeCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "timezone",
			usage: `
              timezone is the IANA name of the inventory timezone, used
              when expanding time-variation profiles.`,
			defaultVal: "UTC",
			flagsets:   []*pflag.FlagSet{initCmd.Flags()},
		},
		{
			name: "codesets",
			usage: `
              codesets lists the slugs of up to three activity-code
              classification schemes to configure for the inventory.`,
			defaultVal: []string(nil),
			flagsets:   []*pflag.FlagSet{initCmd.Flags()},
		},
		{
			name: "file",
			usage: `
              file is the path to the input data file: a spreadsheet
              (.xlsx) for point sources and time-variation profiles, a
              shapefile (.shp) for area sources.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{importCmd.PersistentFlags()},
		},
		{
			name: "importconfig",
			usage: `
              importconfig is the path to a TOML file describing the
              input data: its projection, emission unit, substance and
              tag columns, and overwrite behavior.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{importCmd.PersistentFlags()},
		},
		{
			name: "sheet",
			usage: `
              sheet is the name of the spreadsheet sheet to import from.`,
			defaultVal: "Sheet1",
			flagsets:   []*pflag.FlagSet{importCmd.PersistentFlags()},
		},
		{
			name: "dry-run",
			usage: `
              dry-run validates the input and reports what would be
              imported, then rolls the transaction back.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{importCmd.PersistentFlags()},
		},
		{
			name: "overwrite",
			usage: `
              overwrite replaces existing sources with the same name
              instead of failing.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{importCmd.PersistentFlags()},
		},
		{
			name: "job",
			usage: `
              job is the path to a TOML job file holding the rasterization
              parameters. Command-line flags are ignored when a job file
              is given.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "output",
			usage: `
              output is the directory that the NetCDF raster files are
              written to.`,
			shorthand:  "o",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "nx",
			usage: `
              nx is the number of grid columns.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "ny",
			usage: `
              ny is the number of grid rows.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "gridname",
			usage: `
              gridname names the output grid. It is used in cache keys and
              in the grid shapefile name.`,
			defaultVal: "grid",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), gridCmd.Flags()},
		},
		{
			name: "substances",
			usage: `
              substances lists the substance slugs to process. Empty means
              every substance with emission data.`,
			defaultVal: []string(nil),
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "begin",
			usage: `
              begin is the first hourly timestep of the output time series,
              e.g. '2012-01-01 00:00' (UTC). If begin and end are empty a
              single time-averaged raster is written instead.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "end",
			usage: `
              end is the last hourly timestep of the output time series
              (inclusive).`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "unit",
			usage: `
              unit is the output emission unit in the form '<mass>/<time>',
              e.g. 'ton/year'. The default is kg/s for rasterize and
              ton/year for aggregate.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "sourcetypes",
			usage: `
              sourcetypes restricts processing to the given source types
              ('point', 'area'). Empty means all.`,
			defaultVal: []string(nil),
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "name",
			usage: `
              name is a regular expression; only sources whose names match
              it are included.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "tags",
			usage: `
              tags filters sources by tag, e.g. 'fuel=wood' or 'fuel!=coal'.
              Multiple filters are ANDed together.`,
			defaultVal: []string(nil),
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "ids",
			usage: `
              ids is an explicit source id allow-list.`,
			defaultVal: []string(nil),
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags(), aggregateCmd.Flags()},
		},
		{
			name: "cache",
			usage: `
              cache is a directory where computed grid-cell weights are
              persisted between runs. Empty disables persistence.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "subcells",
			usage: `
              subcells is the super-sampling factor for area-source
              coverage estimates; each grid cell is sampled at
              subcells×subcells points.`,
			defaultVal: 2,
			flagsets:   []*pflag.FlagSet{rasterizeCmd.Flags()},
		},
		{
			name: "codeset",
			usage: `
              codeset is the slug of the activity-code set to group the
              aggregation report by. Empty produces a single total row.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{aggregateCmd.Flags()},
		},
		{
			name: "out",
			usage: `
              out is the directory that the grid shapefile is written to.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{gridCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("EMITK")

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case []string:
				if option.shorthand == "" {
					set.StringSlice(option.name, option.defaultVal.([]string), option.usage)
				} else {
					set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(initCmd)
	Root.AddCommand(importCmd)
	importCmd.AddCommand(importPointsCmd)
	importCmd.AddCommand(importAreasCmd)
	importCmd.AddCommand(importTimevarsCmd)
	Root.AddCommand(rasterizeCmd)
	Root.AddCommand(aggregateCmd)
	Root.AddCommand(gridCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("emitk: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// setLogging configures the log output for this run.
func setLogging() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if Cfg.GetBool("verbose") {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "emitk",
	Short: "An offline emission-inventory toolkit.",
	Long: `emitk manages offline emission inventories and converts them to
spatiotemporal emission rasters. Use the subcommands specified below to
access the functionality.

Configuration can be changed by using a configuration file (providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'EMITK_var' where 'var'
is the name of the variable to be set.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		setLogging()
		return setConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of emitk.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("emitk v%s\n", Version)
	},
	DisableAutoGenTag: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new inventory database",
	Long: `init creates a new inventory database at the --db location, stores
the domain settings, and seeds the default substances. The database must
not already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		extent, err := checkExtent(Cfg.GetString("extent"))
		if err != nil {
			return err
		}
		proj4 := Cfg.GetString("proj4")
		if proj4 == "" {
			proj4 = inventory.WGS84
		}
		return InitDB(Cfg.GetString("db"), &inventory.Settings{
			Proj4:    proj4,
			Extent:   extent,
			Timezone: Cfg.GetString("timezone"),
			CodeSets: checkCodeSets(Cfg.GetStringSlice("codesets")),
		})
	},
	DisableAutoGenTag: true,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import sources or time-variation profiles",
	Long: `import reads emission sources or time-variation profiles from an
input file into the inventory database. Use the subcommands specified
below to choose the input kind.`,
	DisableAutoGenTag: true,
}

var importPointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Import point sources from a spreadsheet",
	Long: `points imports point sources from an xlsx spreadsheet. The first
row holds column headers; 'name', 'x' and 'y' are required.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(importPoints)
	},
	DisableAutoGenTag: true,
}

var importAreasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Import area sources from a shapefile",
	Long: `areas imports polygon area sources from a shapefile. The substance
value attributes are named in the import configuration file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(importAreas)
	},
	DisableAutoGenTag: true,
}

var importTimevarsCmd = &cobra.Command{
	Use:   "timevars",
	Short: "Import time-variation profiles from a spreadsheet",
	Long: `timevars imports time-variation profiles from an xlsx spreadsheet
with one sheet per profile, holding the 24×7 hour-of-week table and the
12 monthly weights.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(importTimevars)
	},
	DisableAutoGenTag: true,
}

var rasterizeCmd = &cobra.Command{
	Use:   "rasterize",
	Short: "Convert inventory emissions to NetCDF rasters",
	Long: `rasterize allocates the filtered inventory emissions to a regular
output grid and writes one NetCDF file per substance, either as a single
time-averaged field or as an hourly time series between --begin and
--end. All parameters can alternatively be given in a TOML job file via
--job.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var job *RasterizeJob
		var err error
		if jobFile := Cfg.GetString("job"); jobFile != "" {
			if job, err = ReadRasterizeJob(jobFile); err != nil {
				return err
			}
		} else if job, err = rasterizeJobFromFlags(); err != nil {
			return err
		}
		return Rasterize(context.Background(), Cfg.GetString("db"), job)
	},
	DisableAutoGenTag: true,
}

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Print an emission total report",
	Long: `aggregate sums the filtered inventory emissions per substance,
optionally grouped by activity code, and prints the result as CSV to
standard output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := aggregateJobFromFlags()
		if err != nil {
			return err
		}
		return Aggregate(context.Background(), cmd.OutOrStdout(), Cfg.GetString("db"), job)
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Export the output grid to a shapefile",
	Long: `grid writes the cells of the output grid to a shapefile, with the
row and column number of each cell as attributes. It is meant for
checking grid placement before a rasterization run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return WriteGridShapefile(Cfg.GetString("db"), Cfg.GetString("out"),
			Cfg.GetString("gridname"), Cfg.GetInt("nx"), Cfg.GetInt("ny"),
			Cfg.GetString("extent"), Cfg.GetString("proj4"))
	},
	DisableAutoGenTag: true,
}
