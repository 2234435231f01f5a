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

// Command emitk is a command-line interface for the emitk emission
// inventory toolkit.
package main

import (
	"fmt"
	"os"

	"github.com/airshedmodel/emitk/emitkutil"
)

func main() {
	if err := emitkutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
